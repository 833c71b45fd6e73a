package storage

import (
	"errors"
	"fmt"
	"time"

	"talkie/internal/models"

	"go.etcd.io/bbolt"
)

var (
	bucketRooms    = []byte("rooms")
	bucketMessages = []byte("messages")
)

// BboltCache is the local message cache. Messages live in per-room nested
// buckets keyed by chat id, so re-inserting an id overwrites rather than
// duplicates. bbolt serializes write transactions, which gives the
// no-partial-writes guarantee for concurrent upserts from the realtime and
// REST-merge paths.
type BboltCache struct {
	db  *bbolt.DB
	now func() time.Time
}

func NewBboltCache(path string) (*BboltCache, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketRooms); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketMessages); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltCache{db: db, now: time.Now}, nil
}

func (s *BboltCache) Close() error {
	return s.db.Close()
}

// UpsertRoom saves room metadata to the cache.
func (s *BboltCache) UpsertRoom(room models.Room) error {
	if room.ID == "" {
		return errors.New("room missing id")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putRoom(tx, room)
	})
}

// QueryRooms returns all cached rooms.
func (s *BboltCache) QueryRooms() ([]models.Room, error) {
	var rooms []models.Room
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRooms)
		return b.ForEach(func(k, v []byte) error {
			var dbRoom DBRoom
			if err := dbRoom.UnmarshalBinary(v); err != nil {
				return err
			}
			rooms = append(rooms, models.Room{
				ID:                dbRoom.ID,
				Name:              dbRoom.Name,
				LastReadMessageID: dbRoom.LastReadMessageID,
				UpdatedAt:         dbRoom.UpdatedAt,
			})
			return nil
		})
	})
	return rooms, err
}

// UpsertMessage saves a message keyed by chat id and touches the owning
// room's UpdatedAt in the same transaction.
func (s *BboltCache) UpsertMessage(message models.Message) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := putMessage(tx, message); err != nil {
			return err
		}
		return touchRoom(tx, message.RoomID, s.now().Unix())
	})
}

// UpsertMessages is the batch form of UpsertMessage. All messages and the
// room metadata updates are applied in one transaction.
func (s *BboltCache) UpsertMessages(messages []models.Message) error {
	if len(messages) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		touched := make(map[string]bool)
		for _, m := range messages {
			if err := putMessage(tx, m); err != nil {
				return err
			}
			touched[m.RoomID] = true
		}
		now := s.now().Unix()
		for roomID := range touched {
			if err := touchRoom(tx, roomID, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// QueryMessages returns all cached messages for a room. Ordering is a caller
// concern; the store iterates in key (chat id) order.
func (s *BboltCache) QueryMessages(roomID string) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		roomBucket := tx.Bucket(bucketMessages).Bucket([]byte(roomID))
		if roomBucket == nil {
			return nil // no messages cached for this room
		}
		return roomBucket.ForEach(func(k, v []byte) error {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			messages = append(messages, models.Message{
				ChatID:         dbMsg.ChatID,
				RoomID:         dbMsg.RoomID,
				Content:        dbMsg.Content,
				CreatedAt:      dbMsg.CreatedAt,
				UpdatedAt:      dbMsg.UpdatedAt,
				Sender: models.Sender{
					UserID:    dbMsg.Sender.UserID,
					Nickname:  dbMsg.Sender.Nickname,
					AvatarRef: dbMsg.Sender.AvatarRef,
				},
				AttachmentRefs: dbMsg.AttachmentRefs,
			})
			return nil
		})
	})
	return messages, err
}

func putRoom(tx *bbolt.Tx, room models.Room) error {
	dbRoom := DBRoom{
		ID:                room.ID,
		Name:              room.Name,
		LastReadMessageID: room.LastReadMessageID,
		UpdatedAt:         room.UpdatedAt,
	}
	data, err := dbRoom.MarshalBinary()
	if err != nil {
		return err
	}
	return tx.Bucket(bucketRooms).Put(dbRoom.Key(), data)
}

func putMessage(tx *bbolt.Tx, message models.Message) error {
	if message.ChatID == "" {
		return errors.New("message missing chatId")
	}
	if message.RoomID == "" {
		return errors.New("message missing roomId")
	}

	roomBucket, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists([]byte(message.RoomID))
	if err != nil {
		return fmt.Errorf("failed to create room bucket: %w", err)
	}

	dbMsg := DBMessage{
		ChatID:    message.ChatID,
		RoomID:    message.RoomID,
		Content:   message.Content,
		CreatedAt: message.CreatedAt,
		UpdatedAt: message.UpdatedAt,
		Sender: DBSender{
			UserID:    message.Sender.UserID,
			Nickname:  message.Sender.Nickname,
			AvatarRef: message.Sender.AvatarRef,
		},
		AttachmentRefs: message.AttachmentRefs,
	}

	data, err := dbMsg.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return roomBucket.Put(dbMsg.Key(), data)
}

// touchRoom bumps the room's UpdatedAt. A room record is created on the spot
// when a message arrives before the room list was ever fetched.
func touchRoom(tx *bbolt.Tx, roomID string, now int64) error {
	b := tx.Bucket(bucketRooms)

	var dbRoom DBRoom
	if data := b.Get([]byte(roomID)); data != nil {
		if err := dbRoom.UnmarshalBinary(data); err != nil {
			return fmt.Errorf("failed to unmarshal room: %w", err)
		}
	} else {
		dbRoom.ID = roomID
	}

	if now > dbRoom.UpdatedAt {
		dbRoom.UpdatedAt = now
	}

	data, err := dbRoom.MarshalBinary()
	if err != nil {
		return err
	}
	return b.Put(dbRoom.Key(), data)
}
