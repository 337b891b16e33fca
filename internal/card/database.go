package card

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	cardBucketName   = "cards"
	folderBucketName = "folders"
)

// DB defines the interface for database operations
type DB interface {
	// SaveCard saves a card to the database
	SaveCard(card *Card) error

	// GetCard retrieves a card by ID
	GetCard(id string) (*Card, error)

	// GetCardByShareToken retrieves a card by its public share token
	GetCardByShareToken(token string) (*Card, error)

	// ListCards returns all cards
	ListCards() ([]*Card, error)

	// DeleteCard removes a card from the database
	DeleteCard(id string) error

	// SaveFolder saves a folder to the database
	SaveFolder(folder *Folder) error

	// GetFolder retrieves a folder by ID
	GetFolder(id string) (*Folder, error)

	// GetFolderByShareToken retrieves a folder by its public share token
	GetFolderByShareToken(token string) (*Folder, error)

	// ListFolders returns all folders
	ListFolders() ([]*Folder, error)

	// DeleteFolder removes a folder from the database
	DeleteFolder(id string) error

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

	// Create buckets if they don't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(cardBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(folderBucketName)); err != nil {
			return err
		}
		return nil
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
		bucket := tx.Bucket([]byte(cardBucketName))
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
		bucket := tx.Bucket([]byte(cardBucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("card not found: %s", id)
		}
		return json.Unmarshal(data, &card)
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

// GetCardByShareToken retrieves a card by its public share token
func (b *BoltDB) GetCardByShareToken(token string) (*Card, error) {
	var card *Card
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(cardBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var c Card
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("unmarshaling card: %w", err)
			}
			if c.ShareToken != "" && c.ShareToken == token {
				card = &c
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, fmt.Errorf("no card shared under this token")
	}
	return card, nil
}

// ListCards returns all cards
func (b *BoltDB) ListCards() ([]*Card, error) {
	cards := make([]*Card, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(cardBucketName))
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
		bucket := tx.Bucket([]byte(cardBucketName))
		return bucket.Delete([]byte(id))
	})
}

// SaveFolder saves a folder to the database
func (b *BoltDB) SaveFolder(folder *Folder) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(folderBucketName))
		data, err := json.Marshal(folder)
		if err != nil {
			return fmt.Errorf("marshaling folder: %w", err)
		}
		return bucket.Put([]byte(folder.ID), data)
	})
}

// GetFolder retrieves a folder by ID
func (b *BoltDB) GetFolder(id string) (*Folder, error) {
	var folder *Folder
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(folderBucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("folder not found: %s", id)
		}
		return json.Unmarshal(data, &folder)
	})
	if err != nil {
		return nil, err
	}
	return folder, nil
}

// GetFolderByShareToken retrieves a folder by its public share token
func (b *BoltDB) GetFolderByShareToken(token string) (*Folder, error) {
	var folder *Folder
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(folderBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var f Folder
			if err := json.Unmarshal(v, &f); err != nil {
				return fmt.Errorf("unmarshaling folder: %w", err)
			}
			if f.ShareToken != "" && f.ShareToken == token {
				folder = &f
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if folder == nil {
		return nil, fmt.Errorf("no folder shared under this token")
	}
	return folder, nil
}

// ListFolders returns all folders
func (b *BoltDB) ListFolders() ([]*Folder, error) {
	folders := make([]*Folder, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(folderBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var folder Folder
			if err := json.Unmarshal(v, &folder); err != nil {
				return fmt.Errorf("unmarshaling folder: %w", err)
			}
			folders = append(folders, &folder)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return folders, nil
}

// DeleteFolder removes a folder from the database
func (b *BoltDB) DeleteFolder(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(folderBucketName))
		return bucket.Delete([]byte(id))
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
