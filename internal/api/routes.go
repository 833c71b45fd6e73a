package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"

	"talkie/internal/models"
)

// Route is a typed request descriptor. The executor turns it into a fresh
// *http.Request for every attempt, so the auth retry never has to rewind a
// consumed body.
type Route struct {
	Method string
	Path   string
	Query  url.Values
	Body   any    // JSON-encoded when non-nil
	Parts  []Part // multipart payload when non-empty
}

// Part is one file part of a multipart upload, held in memory so the request
// body can be rebuilt.
type Part struct {
	Field    string
	FileName string
	MIME     string
	Content  []byte
}

func (r Route) newRequest(ctx context.Context, baseURL string) (*http.Request, error) {
	u, err := url.JoinPath(baseURL, r.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if len(r.Query) > 0 {
		u += "?" + r.Query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case len(r.Parts) > 0:
		buf := &bytes.Buffer{}
		w := multipart.NewWriter(buf)
		for _, p := range r.Parts {
			h := textproto.MIMEHeader{}
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.Field, p.FileName))
			if p.MIME != "" {
				h.Set("Content-Type", p.MIME)
			}
			fw, err := w.CreatePart(h)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
			}
			if _, err := fw.Write(p.Content); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
			}
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		body = buf
		contentType = w.FormDataContentType()
	case r.Body != nil:
		b, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to marshal body: %v", ErrInvalidRequest, err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, u, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

// Response payloads.

type LoginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId"`
}

type RefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type RoomsResponse struct {
	Rooms []models.Room `json:"rooms"`
}

type HistoryResponse struct {
	Messages   []models.Message `json:"messages"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

type UploadResponse struct {
	Refs []string `json:"refs"`
}

// Route constructors.

func LoginRoute(username, password string) Route {
	return Route{
		Method: http.MethodPost,
		Path:   "/api/v1/auth/login",
		Body: map[string]string{
			"username": username,
			"password": password,
		},
	}
}

func RefreshRoute(refreshToken string) Route {
	return Route{
		Method: http.MethodPost,
		Path:   "/api/v1/auth/refresh",
		Body: map[string]string{
			"refreshToken": refreshToken,
		},
	}
}

func LogoutRoute() Route {
	return Route{
		Method: http.MethodPost,
		Path:   "/api/v1/auth/logout",
	}
}

func RoomsRoute() Route {
	return Route{
		Method: http.MethodGet,
		Path:   "/api/v1/chat/rooms",
	}
}

func HistoryRoute(roomID, cursor string) Route {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	return Route{
		Method: http.MethodGet,
		Path:   "/api/v1/chat/rooms/" + url.PathEscape(roomID) + "/messages",
		Query:  q,
	}
}

func SendMessageRoute(roomID, content string, attachmentRefs []string) Route {
	body := map[string]any{
		"content": content,
	}
	if len(attachmentRefs) > 0 {
		body["attachmentRefs"] = attachmentRefs
	}
	return Route{
		Method: http.MethodPost,
		Path:   "/api/v1/chat/rooms/" + url.PathEscape(roomID) + "/messages",
		Body:   body,
	}
}

func UploadRoute(roomID string, parts []Part) Route {
	return Route{
		Method: http.MethodPost,
		Path:   "/api/v1/chat/rooms/" + url.PathEscape(roomID) + "/files",
		Parts:  parts,
	}
}

func MarkReadRoute(roomID, messageID string) Route {
	return Route{
		Method: http.MethodPut,
		Path:   "/api/v1/chat/rooms/" + url.PathEscape(roomID) + "/read",
		Body: map[string]string{
			"lastReadMessageId": messageID,
		},
	}
}
