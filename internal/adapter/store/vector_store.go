package store

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

var (
	bucketVectors = []byte("vectors")
)

type storedVector struct {
	Vector []float32 `json:"v"`
	DocID  string    `json:"d"`
}

func putVector(tx *bbolt.Tx, chunkID string, vector []float32, docID string) error {
	b := tx.Bucket(bucketVectors)
	if b == nil {
		return fmt.Errorf("vectors bucket not found")
	}
	data, err := json.Marshal(storedVector{Vector: vector, DocID: docID})
	if err != nil {
		return err
	}
	return b.Put([]byte(chunkID), data)
}

// getVector returns nil for missing or corrupted entries; the registry
// re-embeds chunks without a vector on restore.
func getVector(tx *bbolt.Tx, chunkID string) []float32 {
	b := tx.Bucket(bucketVectors)
	if b == nil {
		return nil
	}
	data := b.Get([]byte(chunkID))
	if data == nil {
		return nil
	}
	var stored storedVector
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil
	}
	return stored.Vector
}

func deleteVectors(tx *bbolt.Tx, ids []string) error {
	b := tx.Bucket(bucketVectors)
	if b == nil {
		return nil
	}
	for _, id := range ids {
		if err := b.Delete([]byte(id)); err != nil {
			return err
		}
	}
	return nil
}

// VectorCount returns the number of persisted vectors.
func (s *BoltStore) VectorCount() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		if b == nil {
			return nil
		}
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}
