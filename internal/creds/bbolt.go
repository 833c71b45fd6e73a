package creds

import (
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

var (
	bucketCredentials = []byte("credentials")
	keyCurrent        = []byte("current")
)

type dbCredentials struct {
	AccessToken  string `msgpack:"accessToken"`
	RefreshToken string `msgpack:"refreshToken"`
	UserID       string `msgpack:"userId"`
}

func (c *dbCredentials) MarshalBinary() (data []byte, err error) {
	type alias dbCredentials
	return msgpack.Marshal((*alias)(c))
}

func (c *dbCredentials) UnmarshalBinary(data []byte) error {
	type alias dbCredentials
	return msgpack.Unmarshal(data, (*alias)(c))
}

// BboltStore persists the token pair in a bbolt file so a session survives
// process restarts.
type BboltStore struct {
	db *bbolt.DB
}

func NewBboltStore(path string) (*BboltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open credentials db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCredentials)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create credentials bucket: %w", err)
	}

	return &BboltStore{db: db}, nil
}

func (s *BboltStore) Close() error {
	return s.db.Close()
}

func (s *BboltStore) read(ctx context.Context) (dbCredentials, error) {
	var rec dbCredentials
	if err := ctx.Err(); err != nil {
		return rec, err
	}
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketCredentials).Get(keyCurrent)
		if data == nil {
			return nil
		}
		return rec.UnmarshalBinary(data)
	})
	return rec, err
}

func (s *BboltStore) ReadAccess(ctx context.Context) (string, error) {
	rec, err := s.read(ctx)
	return rec.AccessToken, err
}

func (s *BboltStore) ReadRefresh(ctx context.Context) (string, error) {
	rec, err := s.read(ctx)
	return rec.RefreshToken, err
}

func (s *BboltStore) ReadUserID(ctx context.Context) (string, error) {
	rec, err := s.read(ctx)
	return rec.UserID, err
}

// Write replaces access and refresh tokens in one transaction so the pair is
// never observed half-updated.
func (s *BboltStore) Write(ctx context.Context, pair TokenPair) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCredentials)

		rec := dbCredentials{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			UserID:       pair.UserID,
		}
		if rec.UserID == "" {
			var prev dbCredentials
			if data := b.Get(keyCurrent); data != nil {
				if err := prev.UnmarshalBinary(data); err != nil {
					return err
				}
				rec.UserID = prev.UserID
			}
		}

		data, err := rec.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(keyCurrent, data)
	})
}

func (s *BboltStore) WriteUserID(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCredentials)

		var rec dbCredentials
		if data := b.Get(keyCurrent); data != nil {
			if err := rec.UnmarshalBinary(data); err != nil {
				return err
			}
		}
		rec.UserID = userID

		data, err := rec.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(keyCurrent, data)
	})
}

func (s *BboltStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCredentials).Delete(keyCurrent)
	})
}
