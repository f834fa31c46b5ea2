// Package catalog persists the declarative schema (types.Catalog), the
// rewrite rule set, and the named strategies in a bbolt database — the
// same embedded-KV, JSON-value, one-bucket-per-entity-kind pattern the
// teacher uses for its own control-plane state (pkg/storage/boltdb.go).
package catalog

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/graphd/graphd/pkg/gerrs"
	"github.com/graphd/graphd/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketLabels     = []byte("labels")
	bucketEdgeLabels = []byte("edge_labels")
	bucketIndexes    = []byte("indexes")
	bucketInvariants = []byte("invariants")
	bucketExterns    = []byte("externs")
	bucketRules      = []byte("rules")
	bucketStrategies = []byte("strategies")
)

var allBuckets = [][]byte{
	bucketLabels, bucketEdgeLabels, bucketIndexes, bucketInvariants,
	bucketExterns, bucketRules, bucketStrategies,
}

// externsKey is the single key the externs bucket holds — there is exactly
// one ExternSet per catalog, unlike labels/rules/strategies which are
// keyed by name.
var externsKey = []byte("externs")

// Store is the bbolt-backed catalog registry: schema (labels, edge labels,
// indexes, invariants, externs), rewrite rules, and named strategies.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the catalog database under dataDir.
func Open(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "catalog.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, gerrs.Wrap(gerrs.Storage, err, "catalog.Open")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, gerrs.Wrap(gerrs.Storage, err, "catalog.Open")
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// PutLabelSchema upserts a vertex label schema.
func (s *Store) PutLabelSchema(schema *types.LabelSchema) error {
	return s.put(bucketLabels, []byte(schema.Name), schema)
}

// GetLabelSchema looks up a vertex label schema by name.
func (s *Store) GetLabelSchema(name string) (*types.LabelSchema, error) {
	var schema types.LabelSchema
	if err := s.get(bucketLabels, []byte(name), &schema); err != nil {
		return nil, err
	}
	return &schema, nil
}

// DeleteLabelSchema removes a vertex label schema.
func (s *Store) DeleteLabelSchema(name string) error {
	return s.delete(bucketLabels, []byte(name))
}

// PutEdgeLabelSchema upserts an edge label schema.
func (s *Store) PutEdgeLabelSchema(schema *types.EdgeLabelSchema) error {
	return s.put(bucketEdgeLabels, []byte(schema.Name), schema)
}

// GetEdgeLabelSchema looks up an edge label schema by name.
func (s *Store) GetEdgeLabelSchema(name string) (*types.EdgeLabelSchema, error) {
	var schema types.EdgeLabelSchema
	if err := s.get(bucketEdgeLabels, []byte(name), &schema); err != nil {
		return nil, err
	}
	return &schema, nil
}

// DeleteEdgeLabelSchema removes an edge label schema.
func (s *Store) DeleteEdgeLabelSchema(name string) error {
	return s.delete(bucketEdgeLabels, []byte(name))
}

// PutIndexDecl upserts an index declaration, keyed by kind+label+property.
func (s *Store) PutIndexDecl(decl types.IndexDecl) error {
	return s.put(bucketIndexes, indexKey(decl), &decl)
}

// PutInvariantDecl upserts a cross-entity invariant, keyed by kind+label.
func (s *Store) PutInvariantDecl(decl types.InvariantDecl) error {
	return s.put(bucketInvariants, invariantKey(decl), &decl)
}

// PutExternSet replaces the catalog's whitelist of predicate/measure externs.
func (s *Store) PutExternSet(set types.ExternSet) error {
	return s.put(bucketExterns, externsKey, &set)
}

// PutRule upserts a rewrite rule by name.
func (s *Store) PutRule(rule *types.Rule) error {
	return s.put(bucketRules, []byte(rule.Name), rule)
}

// GetRule looks up a rewrite rule by name.
func (s *Store) GetRule(name string) (*types.Rule, error) {
	var rule types.Rule
	if err := s.get(bucketRules, []byte(name), &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// DeleteRule removes a rewrite rule.
func (s *Store) DeleteRule(name string) error {
	return s.delete(bucketRules, []byte(name))
}

// PutStrategy upserts a named strategy.
func (s *Store) PutStrategy(name string, strat types.Strategy) error {
	return s.put(bucketStrategies, []byte(name), &strat)
}

// GetStrategy looks up a named strategy.
func (s *Store) GetStrategy(name string) (*types.Strategy, error) {
	var strat types.Strategy
	if err := s.get(bucketStrategies, []byte(name), &strat); err != nil {
		return nil, err
	}
	return &strat, nil
}

// Load assembles the full in-memory types.Catalog from the persisted
// buckets, for the query planner and rewrite engine to consult without
// going through the bbolt transaction API on every lookup.
func (s *Store) Load() (*types.Catalog, error) {
	cat := &types.Catalog{
		Labels:     map[string]*types.LabelSchema{},
		EdgeLabels: map[string]*types.EdgeLabelSchema{},
	}
	err := s.db.View(func(tx *bolt.Tx) error {
		if err := forEach(tx, bucketLabels, func(_, v []byte) error {
			var l types.LabelSchema
			if err := json.Unmarshal(v, &l); err != nil {
				return err
			}
			cat.Labels[l.Name] = &l
			return nil
		}); err != nil {
			return err
		}
		if err := forEach(tx, bucketEdgeLabels, func(_, v []byte) error {
			var l types.EdgeLabelSchema
			if err := json.Unmarshal(v, &l); err != nil {
				return err
			}
			cat.EdgeLabels[l.Name] = &l
			return nil
		}); err != nil {
			return err
		}
		if err := forEach(tx, bucketIndexes, func(_, v []byte) error {
			var idx types.IndexDecl
			if err := json.Unmarshal(v, &idx); err != nil {
				return err
			}
			cat.Indexes = append(cat.Indexes, idx)
			return nil
		}); err != nil {
			return err
		}
		if err := forEach(tx, bucketInvariants, func(_, v []byte) error {
			var inv types.InvariantDecl
			if err := json.Unmarshal(v, &inv); err != nil {
				return err
			}
			cat.Invariants = append(cat.Invariants, inv)
			return nil
		}); err != nil {
			return err
		}
		if raw := tx.Bucket(bucketExterns).Get(externsKey); raw != nil {
			if err := json.Unmarshal(raw, &cat.Externs); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, gerrs.Wrap(gerrs.Storage, err, "catalog.Load")
	}
	return cat, nil
}

// ListRules returns every persisted rewrite rule.
func (s *Store) ListRules() ([]*types.Rule, error) {
	var rules []*types.Rule
	err := s.db.View(func(tx *bolt.Tx) error {
		return forEach(tx, bucketRules, func(_, v []byte) error {
			var r types.Rule
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			rules = append(rules, &r)
			return nil
		})
	})
	if err != nil {
		return nil, gerrs.Wrap(gerrs.Storage, err, "catalog.ListRules")
	}
	return rules, nil
}

func (s *Store) put(bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return gerrs.Wrap(gerrs.Validation, err, "catalog.put")
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key, data)
	})
	if err != nil {
		return gerrs.Wrap(gerrs.Storage, err, "catalog.put")
	}
	return nil
}

func (s *Store) get(bucket, key []byte, v any) error {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get(key)
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, v)
	})
	if err != nil {
		return gerrs.Wrap(gerrs.Storage, err, "catalog.get")
	}
	if !found {
		return gerrs.WithEntity(gerrs.New(gerrs.NotFound, "catalog entry"), string(key))
	}
	return nil
}

func (s *Store) delete(bucket, key []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete(key)
	})
	if err != nil {
		return gerrs.Wrap(gerrs.Storage, err, "catalog.delete")
	}
	return nil
}

func forEach(tx *bolt.Tx, bucket []byte, fn func(k, v []byte) error) error {
	return tx.Bucket(bucket).ForEach(fn)
}

func indexKey(decl types.IndexDecl) []byte {
	return []byte(string(decl.Kind) + "/" + decl.Label + "/" + decl.Property)
}

func invariantKey(decl types.InvariantDecl) []byte {
	return []byte(string(decl.Kind) + "/" + decl.Label)
}
