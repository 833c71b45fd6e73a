package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"talkie/internal/auth"
	"talkie/internal/creds"

	"github.com/rs/zerolog"
)

type testEnv struct {
	store   creds.Store
	client  *Client
	logouts chan struct{}
}

// newAuthedClient wires a client against srv with a memory credential store
// holding access token "old" and a refresh operation returning "new".
func newAuthedClient(t *testing.T, srv *httptest.Server, refresh auth.RefreshFunc) *testEnv {
	t.Helper()
	ctx := context.Background()
	store := creds.NewMemoryStore()
	if err := store.Write(ctx, creds.TokenPair{AccessToken: "old", RefreshToken: "old-r"}); err != nil {
		t.Fatal(err)
	}
	if refresh == nil {
		refresh = func(ctx context.Context) (creds.TokenPair, error) {
			return creds.TokenPair{AccessToken: "new", RefreshToken: "new-r"}, nil
		}
	}
	logouts := make(chan struct{}, 4)
	coord := auth.NewCoordinator(store, zerolog.Nop())
	a := auth.NewAuthenticator(store, coord, refresh, func() {
		logouts <- struct{}{}
	}, zerolog.Nop())
	c := NewClient(srv.URL, WithAuthenticator(a))
	return &testEnv{store: store, client: c, logouts: logouts}
}

func expectLogouts(t *testing.T, ch <-chan struct{}, want int) {
	t.Helper()
	for i := 0; i < want; i++ {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("expected %d logout signals, got %d", want, i)
		}
	}
	select {
	case <-ch:
		t.Errorf("expected exactly %d logout signals, got more", want)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestExecute_Decode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-Id") == "" {
			t.Error("expected X-Request-Id header on every request")
		}
		w.Write([]byte(`{"rooms":[{"roomId":"r1","name":"general"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	resp, err := Execute[RoomsResponse](context.Background(), c, RoomsRoute())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Rooms) != 1 || resp.Rooms[0].ID != "r1" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestExecute_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := Execute[RoomsResponse](context.Background(), c, RoomsRoute())
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestExecute_RefreshRetry(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := r.Header.Get("Authorization")
		mu.Lock()
		seen = append(seen, tok)
		mu.Unlock()
		if tok != "Bearer new" {
			w.WriteHeader(auth.StatusTokenExpired)
			return
		}
		w.Write([]byte(`{"rooms":[]}`))
	}))
	defer srv.Close()

	var refreshes atomic.Int32
	env := newAuthedClient(t, srv, func(ctx context.Context) (creds.TokenPair, error) {
		refreshes.Add(1)
		return creds.TokenPair{AccessToken: "new", RefreshToken: "new-r"}, nil
	})

	if _, err := Execute[RoomsResponse](context.Background(), env.client, RoomsRoute()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if refreshes.Load() != 1 {
		t.Errorf("expected exactly 1 refresh, got %d", refreshes.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != "Bearer old" || seen[1] != "Bearer new" {
		t.Errorf("unexpected request sequence: %v", seen)
	}
}

func TestExecute_RefreshFailureLogsOut(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(auth.StatusTokenExpired)
	}))
	defer srv.Close()

	env := newAuthedClient(t, srv, func(ctx context.Context) (creds.TokenPair, error) {
		return creds.TokenPair{}, errors.New("refresh token revoked")
	})

	_, err := Execute[RoomsResponse](context.Background(), env.client, RoomsRoute())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if requests.Load() != 1 {
		t.Errorf("expected no retry after failed refresh, got %d requests", requests.Load())
	}
	expectLogouts(t, env.logouts, 1)
	if access, _ := env.store.ReadAccess(context.Background()); access != "" {
		t.Errorf("expected credentials cleared, got %q", access)
	}
}

func TestExecute_PersistentTokenExpired(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(auth.StatusTokenExpired)
	}))
	defer srv.Close()

	env := newAuthedClient(t, srv, nil)
	_, err := Execute[RoomsResponse](context.Background(), env.client, RoomsRoute())
	var se *StatusError
	if !errors.As(err, &se) || se.Code != auth.StatusTokenExpired {
		t.Fatalf("expected StatusError 419 after the single retry, got %v", err)
	}
	if requests.Load() != 2 {
		t.Errorf("expected original request plus one retry, got %d", requests.Load())
	}
}

func TestExecute_UnrecoverableStatuses(t *testing.T) {
	for _, tc := range []struct {
		name       string
		status     int
		wantLogout bool
	}{
		{"Unauthorized", http.StatusUnauthorized, true},
		{"Teapot", http.StatusTeapot, true},
		{"Forbidden", http.StatusForbidden, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var requests atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				requests.Add(1)
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			env := newAuthedClient(t, srv, nil)
			_, err := Execute[RoomsResponse](context.Background(), env.client, RoomsRoute())
			if !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
			if requests.Load() != 1 {
				t.Errorf("expected no retry, got %d requests", requests.Load())
			}
			ctx := context.Background()
			access, _ := env.store.ReadAccess(ctx)
			if tc.wantLogout {
				expectLogouts(t, env.logouts, 1)
				if access != "" {
					t.Errorf("expected credentials cleared, got %q", access)
				}
			} else {
				expectLogouts(t, env.logouts, 0)
				if access == "" {
					t.Error("expected credentials untouched")
				}
			}
		})
	}
}

func TestExecuteNoResponse(t *testing.T) {
	status := make(chan int, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(<-status)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)

	status <- http.StatusNoContent
	if err := c.ExecuteNoResponse(context.Background(), MarkReadRoute("r1", "m1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	status <- http.StatusPartialContent
	err := c.ExecuteNoResponse(context.Background(), MarkReadRoute("r1", "m1"))
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusPartialContent {
		t.Fatalf("expected StatusError 206, got %v", err)
	}
}

func TestExecute_TransportError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", WithHTTPClient(&http.Client{Timeout: time.Second}))
	_, err := Execute[RoomsResponse](context.Background(), c, RoomsRoute())
	var se *StatusError
	if !errors.As(err, &se) || se.Code != 0 {
		t.Fatalf("expected transport StatusError, got %v", err)
	}
}

func TestExecuteMultipart(t *testing.T) {
	t.Run("NoParts", func(t *testing.T) {
		c := NewClient("http://example.test")
		_, err := ExecuteMultipart[UploadResponse](context.Background(), c, UploadRoute("r1", nil))
		if !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest, got %v", err)
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reader, err := r.MultipartReader()
			if err != nil {
				t.Errorf("failed to read multipart body: %v", err)
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			var names, types, bodies []string
			for {
				part, err := reader.NextPart()
				if err == io.EOF {
					break
				}
				if err != nil {
					t.Errorf("failed to read part: %v", err)
					break
				}
				b, _ := io.ReadAll(part)
				names = append(names, part.FileName())
				types = append(types, part.Header.Get("Content-Type"))
				bodies = append(bodies, string(b))
			}
			if len(names) != 2 || names[0] != "a.jpg" || names[1] != "b.png" {
				t.Errorf("unexpected filenames: %v", names)
			}
			if len(types) != 2 || types[0] != "image/jpeg" || types[1] != "image/png" {
				t.Errorf("unexpected content types: %v", types)
			}
			if len(bodies) != 2 || bodies[0] != "jpeg-bytes" || bodies[1] != "png-bytes" {
				t.Errorf("unexpected part bodies: %v", bodies)
			}
			w.Write([]byte(`{"refs":["/files/a","/files/b"]}`))
		}))
		defer srv.Close()

		c := NewClient(srv.URL)
		parts := []Part{
			{Field: "files", FileName: "a.jpg", MIME: "image/jpeg", Content: []byte("jpeg-bytes")},
			{Field: "files", FileName: "b.png", MIME: "image/png", Content: []byte("png-bytes")},
		}
		resp, err := ExecuteMultipart[UploadResponse](context.Background(), c, UploadRoute("r1", parts))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(resp.Refs) != 2 || resp.Refs[0] != "/files/a" {
			t.Errorf("unexpected refs: %v", resp.Refs)
		}
	})
}
