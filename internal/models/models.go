package models

import "errors"

var (
	ErrNotFound = errors.New("not found")
)

// Sender identifies the author of a message.
type Sender struct {
	UserID    string `json:"userId"`
	Nickname  string `json:"nickname"`
	AvatarRef string `json:"avatarRef,omitempty"`
}

// Room represents a chat room as known to the remote service.
type Room struct {
	ID                string `json:"roomId"`
	Name              string `json:"name,omitempty"`
	LastReadMessageID string `json:"lastReadMessageId,omitempty"`
	UpdatedAt         int64  `json:"updatedAt"` // Unix timestamp (seconds)
}

// Message represents a chat message. ChatID is the globally unique primary
// key; RoomID points at the owning room. A message is never mutated after
// creation, except IsMine which is derived from the viewing user.
type Message struct {
	ChatID         string   `json:"chatId"`
	RoomID         string   `json:"roomId"`
	Content        string   `json:"content"`
	CreatedAt      int64    `json:"createdAt"` // Unix timestamp (seconds)
	UpdatedAt      int64    `json:"updatedAt"`
	Sender         Sender   `json:"sender"`
	AttachmentRefs []string `json:"attachmentRefs,omitempty"`
	IsMine         bool     `json:"-"`
}

// ServerEvent is the wire envelope for inbound realtime events.
type ServerEvent struct {
	Type    ServerEventType `json:"type"`
	Message *Message        `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type ServerEventType string

const (
	ServerEventTypeMessage ServerEventType = "message"
	ServerEventTypeError   ServerEventType = "error"
)
