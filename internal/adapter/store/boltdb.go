package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"docrag/internal/domain"
)

var (
	bucketDocs      = []byte("docs")
	bucketTexts     = []byte("texts")
	bucketDocChunks = []byte("doc_chunks")
	bucketMeta      = []byte("meta")

	// dataBuckets hold documents; Clear empties them and keeps bucketMeta.
	dataBuckets = [][]byte{bucketDocs, bucketTexts, bucketDocChunks, bucketVectors}
)

// BoltStore persists registry documents, their text, chunks and vectors.
// Every document write happens in a single transaction.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range append([][]byte{bucketMeta}, dataBuckets...) {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

type docMeta struct {
	SourceRef    string `json:"source_ref"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
	IngestedFrom string `json:"ingested_from,omitempty"`
	Ingested     bool   `json:"ingested"`
}

type chunkMeta struct {
	ID    string `json:"id"`
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// SaveDocument writes the document and replaces its previous chunks and
// vectors.
func (s *BoltStore) SaveDocument(doc domain.Document) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		meta := docMeta{
			SourceRef:    doc.SourceRef,
			CreatedAt:    doc.CreatedAt.UnixNano(),
			UpdatedAt:    doc.UpdatedAt.UnixNano(),
			IngestedFrom: doc.IngestedFrom,
			Ingested:     doc.Ingested,
		}
		data, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketDocs).Put([]byte(doc.ID), data); err != nil {
			return err
		}
		if err := tx.Bucket(bucketTexts).Put([]byte(doc.ID), []byte(doc.Text)); err != nil {
			return err
		}

		if err := deleteChunks(tx, doc.ID); err != nil {
			return err
		}

		chunks := make([]chunkMeta, 0, len(doc.Chunks))
		for _, c := range doc.Chunks {
			chunks = append(chunks, chunkMeta{ID: c.ID, Index: c.Index, Text: c.Text})
			if len(c.Vector) > 0 {
				if err := putVector(tx, c.ID, c.Vector, doc.ID); err != nil {
					return err
				}
			}
		}
		chunksData, err := json.Marshal(chunks)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketDocChunks).Put([]byte(doc.ID), chunksData)
	})
}

func (s *BoltStore) DeleteDocument(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := deleteChunks(tx, id); err != nil {
			return err
		}
		if err := tx.Bucket(bucketTexts).Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket(bucketDocs).Delete([]byte(id))
	})
}

// LoadDocuments returns every stored document with chunks and vectors,
// ordered by creation time.
func (s *BoltStore) LoadDocuments() ([]domain.Document, error) {
	var docs []domain.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		texts := tx.Bucket(bucketTexts)
		docChunks := tx.Bucket(bucketDocChunks)

		return tx.Bucket(bucketDocs).ForEach(func(k, v []byte) error {
			var meta docMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				return fmt.Errorf("decode document %s: %w", k, err)
			}
			doc := domain.Document{
				ID:           string(k),
				SourceRef:    meta.SourceRef,
				CreatedAt:    time.Unix(0, meta.CreatedAt),
				UpdatedAt:    time.Unix(0, meta.UpdatedAt),
				IngestedFrom: meta.IngestedFrom,
				Ingested:     meta.Ingested,
				Text:         string(texts.Get(k)),
			}

			if data := docChunks.Get(k); data != nil {
				var chunks []chunkMeta
				if err := json.Unmarshal(data, &chunks); err != nil {
					return fmt.Errorf("decode chunks of %s: %w", k, err)
				}
				for _, c := range chunks {
					doc.Chunks = append(doc.Chunks, domain.Chunk{
						ID:     c.ID,
						DocID:  doc.ID,
						Index:  c.Index,
						Text:   c.Text,
						Vector: getVector(tx, c.ID),
					})
				}
			}
			docs = append(docs, doc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.Before(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func deleteChunks(tx *bbolt.Tx, docID string) error {
	docChunks := tx.Bucket(bucketDocChunks)
	data := docChunks.Get([]byte(docID))
	if data == nil {
		return nil
	}
	var chunks []chunkMeta
	if err := json.Unmarshal(data, &chunks); err != nil {
		return err
	}
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	if err := deleteVectors(tx, ids); err != nil {
		return err
	}
	return docChunks.Delete([]byte(docID))
}
