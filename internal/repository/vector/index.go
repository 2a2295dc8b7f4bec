package vector

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/rueidis"

	"go.uber.org/zap"
)

const (
	indexName = "websites_idx"
	keyPrefix = "seamark:website:"
	dimKey    = "seamark:websites:dim"
)

// EnsureReady makes sure the FT index exists and was built for the given
// vector dimension. When the recorded dimension differs from dim, the index
// and every indexed vector are dropped and the index is recreated; callers
// are expected to trigger a full re-index afterwards. When the recorded
// dimension cannot be read the index is assumed usable rather than destroyed.
func (s *Store) EnsureReady(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("vector dimension must be positive, got %d", dim)
	}

	exists, err := s.indexExists(ctx)
	if err != nil {
		return err
	}

	if !exists {
		if err := s.createIndex(ctx, dim); err != nil {
			return err
		}
		s.logger.Info("Created vector index",
			zap.String("index", indexName),
			zap.Int("dimension", dim),
		)
		return s.storeDimension(ctx, dim)
	}

	stored, ok := s.storedDimension(ctx)
	if !ok {
		// No readable record of the index dimension. Destroying data on a
		// read failure is worse than a possible dimension mismatch, so keep
		// the index and record the current dimension.
		s.logger.Warn("Vector index dimension unknown, assuming index is usable",
			zap.String("index", indexName),
			zap.Int("dimension", dim),
		)
		return s.storeDimension(ctx, dim)
	}

	if stored == dim {
		return nil
	}

	s.logger.Warn("Vector index dimension changed, recreating index",
		zap.String("index", indexName),
		zap.Int("stored_dimension", stored),
		zap.Int("dimension", dim),
	)
	if err := s.dropIndex(ctx); err != nil {
		return err
	}
	if err := s.createIndex(ctx, dim); err != nil {
		return err
	}
	return s.storeDimension(ctx, dim)
}

// indexExists probes index existence via FT.INFO; "unknown index name" means absent.
func (s *Store) indexExists(ctx context.Context) (bool, error) {
	cmd := s.b().Arbitrary("FT.INFO").Args(indexName).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "unknown index name") {
			return false, nil
		}
		return false, storeErr("index info", err)
	}
	return true, nil
}

func (s *Store) createIndex(ctx context.Context, dim int) error {
	args := []string{
		indexName,
		"ON", "HASH",
		"PREFIX", "1", keyPrefix,
		"SCHEMA",
		"website_id", "NUMERIC",
		"title", "TEXT",
		"category", "TAG",
		"vector", "VECTOR", "HNSW", "6",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(dim),
		"DISTANCE_METRIC", "COSINE",
	}

	cmd := s.b().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return nil
		}
		return storeErr("create index", err)
	}
	return nil
}

// dropIndex removes the index and all indexed hashes (FT.DROPINDEX DD).
func (s *Store) dropIndex(ctx context.Context) error {
	cmd := s.b().Arbitrary("FT.DROPINDEX").Args(indexName, "DD").Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "unknown index name") {
			return nil
		}
		return storeErr("drop index", err)
	}
	return nil
}

func (s *Store) storedDimension(ctx context.Context) (int, bool) {
	cmd := s.b().Get().Key(dimKey).Build()
	raw, err := s.do(ctx, cmd).ToString()
	if err != nil {
		if !rueidis.IsRedisNil(err) {
			s.logger.Warn("Failed to read stored vector dimension", zap.Error(err))
		}
		return 0, false
	}
	dim, err := strconv.Atoi(raw)
	if err != nil || dim <= 0 {
		s.logger.Warn("Stored vector dimension is malformed", zap.String("value", raw))
		return 0, false
	}
	return dim, true
}

func (s *Store) storeDimension(ctx context.Context, dim int) error {
	cmd := s.b().Set().Key(dimKey).Value(strconv.Itoa(dim)).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return storeErr("store dimension", err)
	}
	return nil
}
