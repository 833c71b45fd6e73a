package storage

import (
	"encoding"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBRoom struct {
	ID                string `msgpack:"id"`
	Name              string `msgpack:"name"`
	LastReadMessageID string `msgpack:"lastReadMessageId"`
	UpdatedAt         int64  `msgpack:"updatedAt"`
}

func (r *DBRoom) Key() []byte {
	return []byte(r.ID)
}

func (r *DBRoom) MarshalBinary() (data []byte, err error) {
	type alias DBRoom
	return msgpack.Marshal((*alias)(r))
}

func (r *DBRoom) UnmarshalBinary(data []byte) error {
	type alias DBRoom
	return msgpack.Unmarshal(data, (*alias)(r))
}

type DBMessage struct {
	ChatID         string   `msgpack:"chatId"`
	RoomID         string   `msgpack:"roomId"`
	Content        string   `msgpack:"content"`
	CreatedAt      int64    `msgpack:"createdAt"`
	UpdatedAt      int64    `msgpack:"updatedAt"`
	Sender         DBSender `msgpack:"sender"`
	AttachmentRefs []string `msgpack:"attachmentRefs"`
}

type DBSender struct {
	UserID    string `msgpack:"userId"`
	Nickname  string `msgpack:"nickname"`
	AvatarRef string `msgpack:"avatarRef"`
}

func (m *DBMessage) Key() []byte {
	return []byte(m.ChatID)
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}
