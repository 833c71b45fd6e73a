package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"talkie/internal/api"
	"talkie/internal/creds"
	"talkie/internal/metrics"
	"talkie/internal/models"
	"talkie/internal/ws"

	"github.com/h2non/filetype"
	"github.com/rs/zerolog"
)

// MaxUploadFiles caps a single attachment upload.
const MaxUploadFiles = 10

var ErrTooManyFiles = fmt.Errorf("too many files, max %d per upload", MaxUploadFiles)

// Upload is one local file handed to UploadAttachments, held in memory so
// the multipart body can be rebuilt on an auth retry.
type Upload struct {
	Name    string
	Content []byte
}

// Cache is the slice of the local store the service needs.
type Cache interface {
	UpsertRoom(room models.Room) error
	QueryRooms() ([]models.Room, error)
	UpsertMessage(message models.Message) error
	UpsertMessages(messages []models.Message) error
	QueryMessages(roomID string) ([]models.Message, error)
}

// Realtime is the per-room streaming connection the service orchestrates.
type Realtime interface {
	Subscribe(ctx context.Context, roomID string) (<-chan ws.Event, error)
	Suspend()
	Resume()
	Close()
}

// Service orchestrates the REST client, the realtime connection and the
// local cache. It holds no authoritative state of its own.
type Service struct {
	api   *api.Client
	live  Realtime
	cache Cache
	store creds.Store
	log   zerolog.Logger

	senders *senderRegistry

	viewMu     sync.RWMutex
	viewedRoom string

	merges sync.WaitGroup
}

func NewService(ctx context.Context, apiClient *api.Client, live Realtime, cache Cache, store creds.Store, logger zerolog.Logger) *Service {
	return &Service{
		api:     apiClient,
		live:    live,
		cache:   cache,
		store:   store,
		log:     logger,
		senders: newSenderRegistry(ctx),
	}
}

// ListRooms fetches the room list from the remote service.
func (s *Service) ListRooms(ctx context.Context) ([]models.Room, error) {
	res, err := api.Execute[api.RoomsResponse](ctx, s.api, api.RoomsRoute())
	if err != nil {
		return nil, err
	}
	return res.Rooms, nil
}

// FetchHistory returns the REST-authoritative page of messages for the
// cursor, plus the cursor for the next page. The page is merged into the
// cache on a background goroutine; the returned slice comes straight from
// the network, never from the cache.
func (s *Service) FetchHistory(ctx context.Context, roomID, cursor string) ([]models.Message, string, error) {
	res, err := api.Execute[api.HistoryResponse](ctx, s.api, api.HistoryRoute(roomID, cursor))
	if err != nil {
		return nil, "", err
	}

	userID, err := s.store.ReadUserID(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read user id: %w", err)
	}
	for i := range res.Messages {
		res.Messages[i].IsMine = isMine(res.Messages[i], userID)
	}

	s.mergeAsync(res.Messages)
	return res.Messages, res.NextCursor, nil
}

// SendViaAPI sends a message over REST. This is the path used when
// attachment refs are present; the server-confirmed message is returned and
// merged into the cache off the critical path.
func (s *Service) SendViaAPI(ctx context.Context, roomID, content string, attachmentRefs []string) (models.Message, error) {
	msg, err := api.Execute[models.Message](ctx, s.api, api.SendMessageRoute(roomID, content, attachmentRefs))
	if err != nil {
		return models.Message{}, err
	}

	userID, err := s.store.ReadUserID(ctx)
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to read user id: %w", err)
	}
	msg.IsMine = isMine(msg, userID)

	s.mergeAsync([]models.Message{msg})
	return msg, nil
}

// UploadAttachments uploads files for a room and returns the server-assigned
// refs to pass to SendViaAPI. MIME types are sniffed from content.
func (s *Service) UploadAttachments(ctx context.Context, roomID string, files []Upload) ([]string, error) {
	if len(files) == 0 {
		return nil, errors.New("no files to upload")
	}
	if len(files) > MaxUploadFiles {
		return nil, ErrTooManyFiles
	}

	parts := make([]api.Part, len(files))
	for i, f := range files {
		parts[i] = api.Part{
			Field:    "files",
			FileName: f.Name,
			MIME:     sniffMIME(f.Content),
			Content:  f.Content,
		}
	}

	res, err := api.ExecuteMultipart[api.UploadResponse](ctx, s.api, api.UploadRoute(roomID, parts))
	if err != nil {
		return nil, err
	}
	return res.Refs, nil
}

// MarkRead advances the room's last-read marker on the server.
func (s *Service) MarkRead(ctx context.Context, roomID, messageID string) error {
	return s.api.ExecuteNoResponse(ctx, api.MarkReadRoute(roomID, messageID))
}

// SubscribeLive opens a live subscription to the room. Every decoded
// inbound message is upserted into the cache before it is yielded, so a
// consumer that observed a message will find it in the cache afterwards.
func (s *Service) SubscribeLive(ctx context.Context, roomID string) (<-chan ws.Event, error) {
	inner, err := s.live.Subscribe(ctx, roomID)
	if err != nil {
		return nil, err
	}

	out := make(chan ws.Event)
	go func() {
		defer close(out)
		for ev := range inner {
			if ev.Message != nil {
				m := *ev.Message
				userID, err := s.store.ReadUserID(ctx)
				if err != nil {
					s.log.Warn().Err(err).Msg("failed to read user id for live message")
				}
				m.IsMine = isMine(m, userID)
				s.senders.remember(m.Sender)

				if err := s.cache.UpsertMessage(m); err != nil {
					// Cache writes stay best-effort: log, count, deliver.
					metrics.CacheMergeFailures.Inc()
					s.log.Warn().Err(err).Str("chatId", m.ChatID).Msg("failed to cache live message")
				}
				ev = ws.Event{Message: &m}
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Disconnect tears down the realtime connection and waits for pending
// background cache merges.
func (s *Service) Disconnect() {
	s.live.Close()
	s.merges.Wait()
}

// Suspend and Resume forward the host lifecycle (background/foreground) to
// the realtime connection.
func (s *Service) Suspend() { s.live.Suspend() }
func (s *Service) Resume()  { s.live.Resume() }

// SetViewedRoom records which room the user is currently looking at. The
// notification layer queries IsViewing to decide whether to suppress a
// visual alert; the suppression itself happens there.
func (s *Service) SetViewedRoom(roomID string) {
	s.viewMu.Lock()
	s.viewedRoom = roomID
	s.viewMu.Unlock()
}

func (s *Service) ViewedRoom() string {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.viewedRoom
}

func (s *Service) IsViewing(roomID string) bool {
	return roomID != "" && s.ViewedRoom() == roomID
}

// Sender resolves a recently seen sender profile without a network call.
func (s *Service) Sender(userID string) (models.Sender, bool) {
	return s.senders.get(userID)
}

func (s *Service) mergeAsync(messages []models.Message) {
	if len(messages) == 0 {
		return
	}
	// The caller keeps the slice and may mutate it after return.
	own := make([]models.Message, len(messages))
	copy(own, messages)
	s.merges.Add(1)
	go func() {
		defer s.merges.Done()
		if err := s.cache.UpsertMessages(own); err != nil {
			metrics.CacheMergeFailures.Inc()
			s.log.Warn().Err(err).Int("count", len(messages)).Msg("failed to merge messages into cache")
		}
	}()
}

func isMine(m models.Message, userID string) bool {
	return userID != "" && m.Sender.UserID == userID
}

func sniffMIME(content []byte) string {
	if kind, err := filetype.Match(content); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	return "application/octet-stream"
}
