package payment

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const (
	verificationBucketName = "verifications"
	referenceBucketName    = "references"
)

// DB defines the interface for database operations
type DB interface {
	// SaveVerification saves a verification to the database
	SaveVerification(v *Verification) error

	// GetVerification retrieves a verification by ID
	GetVerification(id string) (*Verification, error)

	// ListVerifications returns all verifications, oldest first
	ListVerifications() ([]*Verification, error)

	// MarkReferenceUsed consumes a reference for the given verification
	MarkReferenceUsed(reference, verificationID string, at time.Time) error

	// Contains reports whether a reference was already consumed
	Contains(reference string) (bool, error)

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
		for _, name := range []string{verificationBucketName, referenceBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveVerification saves a verification to the database
func (b *BoltDB) SaveVerification(v *Verification) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling verification: %w", err)
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(verificationBucketName)).Put([]byte(v.ID), data)
	})
}

// GetVerification retrieves a verification by ID
func (b *BoltDB) GetVerification(id string) (*Verification, error) {
	var v *Verification
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(verificationBucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrVerificationNotFound, id)
		}
		return json.Unmarshal(data, &v)
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ListVerifications returns all verifications, oldest first
func (b *BoltDB) ListVerifications() ([]*Verification, error) {
	verifications := make([]*Verification, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(verificationBucketName)).ForEach(func(k, data []byte) error {
			var v Verification
			if err := json.Unmarshal(data, &v); err != nil {
				return fmt.Errorf("unmarshaling verification %s: %w", k, err)
			}
			verifications = append(verifications, &v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(verifications, func(i, j int) bool {
		return verifications[i].CreatedAt.Before(verifications[j].CreatedAt)
	})
	return verifications, nil
}

// MarkReferenceUsed consumes a reference. Consuming it again for the same
// verification is a no-op; any other verification gets ErrReferenceUsed.
func (b *BoltDB) MarkReferenceUsed(reference, verificationID string, at time.Time) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(referenceBucketName))
		if existing := bucket.Get([]byte(reference)); existing != nil {
			var consumed ConsumedReference
			if err := json.Unmarshal(existing, &consumed); err != nil {
				return fmt.Errorf("unmarshaling reference: %w", err)
			}
			if consumed.VerificationID == verificationID {
				return nil
			}
			return fmt.Errorf("%w: %s", ErrReferenceUsed, reference)
		}

		data, err := json.Marshal(ConsumedReference{
			Reference:      reference,
			VerificationID: verificationID,
			ConsumedAt:     at,
		})
		if err != nil {
			return fmt.Errorf("marshaling reference: %w", err)
		}
		return bucket.Put([]byte(reference), data)
	})
}

// Contains reports whether a reference was already consumed
func (b *BoltDB) Contains(reference string) (bool, error) {
	var found bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket([]byte(referenceBucketName)).Get([]byte(reference)) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("looking up reference: %w", err)
	}
	return found, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
