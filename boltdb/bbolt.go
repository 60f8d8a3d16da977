package boltdb

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"wardenbridge/types"
)

var relaysBucket = []byte("Relays")

// Store keeps relay records in a single bbolt file, keyed by idempotency key.
// The file lock makes one process the only writer.
type Store struct {
	db *bbolt.DB
}

func Open(filePath string) (*Store, error) {
	db, err := bbolt.Open(filePath, 0660, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("could not open db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(relaysBucket); err != nil {
			return fmt.Errorf("could not bucket: %s, err: %w", string(relaysBucket), err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(key string) (*types.RelayRecord, error) {
	var rec *types.RelayRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(relaysBucket).Get([]byte(key))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("could not read relay record %s: %w", key, err)
	}

	return rec, nil
}

func (s *Store) Claim(rec *types.RelayRecord) (bool, error) {
	if err := prepare(rec); err != nil {
		return false, err
	}

	claimed := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(relaysBucket)
		if bucket.Get([]byte(rec.Key)) != nil {
			return nil
		}

		bytes, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("could not marshal relay record: %w", err)
		}
		if err := bucket.Put([]byte(rec.Key), bytes); err != nil {
			return fmt.Errorf("relay record write error: %w", err)
		}
		claimed = true
		return nil
	})

	return claimed, err
}

func (s *Store) Update(rec *types.RelayRecord) error {
	if err := prepare(rec); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bytes, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("could not marshal relay record: %w", err)
		}
		if err := tx.Bucket(relaysBucket).Put([]byte(rec.Key), bytes); err != nil {
			return fmt.Errorf("relay record write error: %w", err)
		}
		return nil
	})
}

func (s *Store) Release(key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(relaysBucket).Delete([]byte(key))
	})
}

func (s *Store) ListByStatus(status string) ([]*types.RelayRecord, error) {
	if !knownStatus(status) {
		return nil, fmt.Errorf("unknown relay status %q", status)
	}

	result := make([]*types.RelayRecord, 0)

	err := s.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(relaysBucket).Cursor()

		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			var rec *types.RelayRecord

			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}

			if rec.Status == status {
				result = append(result, rec)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func prepare(rec *types.RelayRecord) error {
	if rec == nil {
		return fmt.Errorf("null object to store")
	}
	if rec.Key == "" {
		return fmt.Errorf("relay record cannot have empty key")
	}
	if !knownStatus(rec.Status) {
		return fmt.Errorf("relay record has unknown status %q", rec.Status)
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.TsUpdated = time.Now().Unix()
	return nil
}

func knownStatus(status string) bool {
	for _, s := range types.RecordStatuses {
		if s == status {
			return true
		}
	}
	return false
}
