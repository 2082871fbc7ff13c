package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"go.etcd.io/bbolt"

	"docrag/config"
)

// CurrentSchemaVersion is bumped on incompatible changes to the bucket layout.
const CurrentSchemaVersion = 1

var keySchema = []byte("schema")

// Fingerprint is the subset of configuration that determines stored chunks
// and vectors. Documents stored under a different fingerprint are re-chunked
// and re-embedded on restore.
type Fingerprint struct {
	ChunkSize    int      `json:"chunk_size"`
	ChunkOverlap int      `json:"chunk_overlap"`
	Separators   []string `json:"separators,omitempty"`
	Provider     string   `json:"embedding_provider"`
	Model        string   `json:"embedding_model"`
	Dimension    int      `json:"embedding_dimension"`
}

func FingerprintOf(cfg *config.Config) Fingerprint {
	return Fingerprint{
		ChunkSize:    cfg.Chunking.ChunkSize,
		ChunkOverlap: cfg.Chunking.ChunkOverlap,
		Separators:   cfg.Chunking.Separators,
		Provider:     cfg.Embedding.Provider,
		Model:        cfg.Embedding.Model,
		Dimension:    cfg.Embedding.Dimension,
	}
}

func (f Fingerprint) Hash() string {
	data, _ := json.Marshal(f)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// Changes lists the settings that differ from prev as "name old -> new".
func (f Fingerprint) Changes(prev Fingerprint) []string {
	var out []string
	add := func(name string, old, cur any) {
		out = append(out, fmt.Sprintf("%s %v -> %v", name, old, cur))
	}
	if f.ChunkSize != prev.ChunkSize {
		add("chunk_size", prev.ChunkSize, f.ChunkSize)
	}
	if f.ChunkOverlap != prev.ChunkOverlap {
		add("chunk_overlap", prev.ChunkOverlap, f.ChunkOverlap)
	}
	if !slices.Equal(f.Separators, prev.Separators) {
		add("separators", prev.Separators, f.Separators)
	}
	if f.Provider != prev.Provider {
		add("embedding_provider", prev.Provider, f.Provider)
	}
	if f.Model != prev.Model {
		add("embedding_model", prev.Model, f.Model)
	}
	if f.Dimension != prev.Dimension {
		add("embedding_dimension", prev.Dimension, f.Dimension)
	}
	return out
}

// ComputeConfigHash is shorthand for FingerprintOf(cfg).Hash().
func ComputeConfigHash(cfg *config.Config) string {
	return FingerprintOf(cfg).Hash()
}

// SchemaInfo is the single record kept in the meta bucket. A zero Version
// means the store has never been migrated.
type SchemaInfo struct {
	Version     int          `json:"version"`
	ConfigHash  string       `json:"config_hash"`
	Fingerprint *Fingerprint `json:"fingerprint,omitempty"`
}

func (s *BoltStore) GetSchemaInfo() (*SchemaInfo, error) {
	info := &SchemaInfo{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keySchema)
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, info); err != nil {
			return fmt.Errorf("decode schema info: %w", err)
		}
		return nil
	})
	return info, err
}

func (s *BoltStore) SetSchemaInfo(info *SchemaInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keySchema, data)
	})
}

// MigrationResult reports what Restore must do before the store is usable
// with the current configuration.
type MigrationResult struct {
	NeedsMigration bool
	NeedsRebuild   bool
	// Incompatible is set when the layout is newer than this binary reads;
	// the data buckets must be cleared before use.
	Incompatible bool
	OldVersion     int
	NewVersion     int
	Reason         string
}

func (s *BoltStore) CheckMigration(cfg *config.Config) (*MigrationResult, error) {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return nil, err
	}

	result := &MigrationResult{OldVersion: info.Version, NewVersion: CurrentSchemaVersion}
	switch {
	case info.Version == 0:
		result.NeedsMigration = true
		result.Reason = "initializing schema version"
	case info.Version > CurrentSchemaVersion:
		result.NeedsRebuild = true
		result.Incompatible = true
		result.Reason = fmt.Sprintf("store written by a newer schema (v%d > v%d)", info.Version, CurrentSchemaVersion)
		return result, nil
	case info.Version < CurrentSchemaVersion:
		result.NeedsMigration = true
		result.Reason = fmt.Sprintf("schema upgrade from v%d to v%d", info.Version, CurrentSchemaVersion)
	}

	current := FingerprintOf(cfg)
	if info.ConfigHash == "" || info.ConfigHash == current.Hash() {
		return result, nil
	}
	result.NeedsRebuild = true
	result.Reason = "chunking or embedding configuration changed"
	if info.Fingerprint != nil {
		if changes := current.Changes(*info.Fingerprint); len(changes) > 0 {
			result.Reason += ": " + strings.Join(changes, ", ")
		}
	}
	return result, nil
}

// Migrate upgrades the bucket layout and records the current fingerprint.
func (s *BoltStore) Migrate(cfg *config.Config) error {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return err
	}
	for v := info.Version; v < CurrentSchemaVersion; v++ {
		if err := s.runMigration(v, v+1); err != nil {
			return fmt.Errorf("migration from v%d to v%d failed: %w", v, v+1, err)
		}
	}

	fp := FingerprintOf(cfg)
	return s.SetSchemaInfo(&SchemaInfo{
		Version:     CurrentSchemaVersion,
		ConfigHash:  fp.Hash(),
		Fingerprint: &fp,
	})
}

func (s *BoltStore) runMigration(from, to int) error {
	if from == 0 && to == 1 {
		return s.db.Update(func(tx *bbolt.Tx) error {
			for _, name := range dataBuckets {
				if _, err := tx.CreateBucketIfNotExists(name); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return nil
}

// Clear empties the data buckets and keeps the schema record.
func (s *BoltStore) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range dataBuckets {
			if err := tx.DeleteBucket(name); err != nil && err != bbolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}

// NeedsRebuild reports whether stored documents must be re-chunked under cfg.
func (s *BoltStore) NeedsRebuild(cfg *config.Config) (bool, string, error) {
	result, err := s.CheckMigration(cfg)
	if err != nil {
		return false, "", err
	}
	return result.NeedsRebuild, result.Reason, nil
}
