package card

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const bucketName = "cards"

// ErrNotFound is returned when a card ID has no record
var ErrNotFound = errors.New("card not found")

// DB defines the interface for database operations
type DB interface {
	// SaveCard creates or replaces a card
	SaveCard(card *Card) error

	// GetCard retrieves a card by ID
	GetCard(id string) (*Card, error)

	// ListCards returns all cards
	ListCards() ([]*Card, error)

	// DeleteCard removes a card from the database
	DeleteCard(id string) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveCard saves a card to the database
func (b *BoltDB) SaveCard(card *Card) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		data, err := json.Marshal(card)
		if err != nil {
			return fmt.Errorf("marshaling card: %w", err)
		}
		return bucket.Put([]byte(card.ID), data)
	})
}

// GetCard retrieves a card by ID
func (b *BoltDB) GetCard(id string) (*Card, error) {
	var card *Card
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &card)
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

// ListCards returns all cards ordered by ID
func (b *BoltDB) ListCards() ([]*Card, error) {
	cards := make([]*Card, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var card Card
			if err := json.Unmarshal(v, &card); err != nil {
				return fmt.Errorf("unmarshaling card: %w", err)
			}
			cards = append(cards, &card)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return cards, nil
}

// DeleteCard removes a card from the database
func (b *BoltDB) DeleteCard(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return bucket.Delete([]byte(id))
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
