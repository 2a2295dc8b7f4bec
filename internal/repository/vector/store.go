package vector

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/redis/rueidis"

	"go.uber.org/zap"

	"github.com/seamark-nav/seamark/internal/domain"
)

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrVectorStore, op, err)
}

func websiteKey(id int64) string {
	return keyPrefix + strconv.FormatInt(id, 10)
}

// Upsert stores a website vector with its display payload.
func (s *Store) Upsert(ctx context.Context, websiteID int64, vec []float32, payload domain.VectorPayload) error {
	if len(vec) == 0 {
		return storeErr("upsert", fmt.Errorf("empty vector for website %d", websiteID))
	}

	cmd := s.b().Hset().Key(websiteKey(websiteID)).FieldValue().
		FieldValue("website_id", strconv.FormatInt(websiteID, 10)).
		FieldValue("title", payload.Title).
		FieldValue("description", payload.Description).
		FieldValue("category", payload.Category).
		FieldValue("url", payload.URL).
		FieldValue("vector", vectorToBytes(vec)).
		Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return storeErr("upsert", err)
	}
	return nil
}

// Delete removes a website vector. A missing key is not an error; other
// failures are logged and swallowed so callers can treat deletion as
// best-effort cleanup.
func (s *Store) Delete(ctx context.Context, websiteID int64) {
	cmd := s.b().Del().Key(websiteKey(websiteID)).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		s.logger.Warn("Failed to delete website vector",
			zap.Int64("website_id", websiteID),
			zap.Error(err),
		)
	}
}

// Existing reports which of the given website ids already have a stored
// vector, using one pipelined round-trip.
func (s *Store) Existing(ctx context.Context, websiteIDs []int64) (map[int64]bool, error) {
	if len(websiteIDs) == 0 {
		return nil, nil
	}

	cmds := make([]rueidis.Completed, len(websiteIDs))
	for i, id := range websiteIDs {
		cmds[i] = s.b().Exists().Key(websiteKey(id)).Build()
	}

	out := make(map[int64]bool, len(websiteIDs))
	results := s.client.DoMulti(ctx, cmds...)
	for i, res := range results {
		count, err := res.AsInt64()
		if err != nil {
			return nil, storeErr("existing", fmt.Errorf("website %d: %w", websiteIDs[i], err))
		}
		out[websiteIDs[i]] = count > 0
	}
	return out, nil
}

// Search runs a KNN query and returns hits with similarity at or above
// threshold, best first. Cosine distance converts to similarity as 1-d,
// clamped to [0, 1].
func (s *Store) Search(ctx context.Context, vec []float32, limit int, threshold float64) ([]domain.VectorHit, error) {
	if len(vec) == 0 {
		return nil, storeErr("search", fmt.Errorf("empty query vector"))
	}
	if limit <= 0 {
		return nil, nil
	}

	args := []string{
		indexName,
		fmt.Sprintf("*=>[KNN %d @vector $BLOB]", limit),
		"RETURN", "6", "website_id", "title", "description", "category", "url", "__vector_score",
		"SORTBY", "__vector_score",
		"PARAMS", "2", "BLOB", vectorToBytes(vec),
		"DIALECT", "2",
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, storeErr("search", err)
	}

	hits, err := parseSearchResult(raw)
	if err != nil {
		return nil, storeErr("search", err)
	}

	filtered := hits[:0]
	for _, h := range hits {
		if h.Score >= threshold {
			filtered = append(filtered, h)
		}
	}
	return filtered, nil
}

// parseSearchResult decodes a RESP2 FT.SEARCH reply:
// [total, key1, fields1, key2, fields2, ...]. Malformed entries are skipped.
func parseSearchResult(raw []rueidis.RedisMessage) ([]domain.VectorHit, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	hits := make([]domain.VectorHit, 0, total)
	for i := 1; i+1 < len(raw); i += 2 {
		fieldList, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		fields := parseFieldPairs(fieldList)

		id, err := strconv.ParseInt(fields["website_id"], 10, 64)
		if err != nil {
			continue
		}

		hit := domain.VectorHit{
			WebsiteID: id,
			Payload: domain.VectorPayload{
				Title:       fields["title"],
				Description: fields["description"],
				Category:    fields["category"],
				URL:         fields["url"],
			},
		}
		if dist, err := strconv.ParseFloat(fields["__vector_score"], 64); err == nil {
			hit.Score = max(0, min(1, 1.0-dist))
		}
		hits = append(hits, hit)
	}

	return hits, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// vectorToBytes encodes float32s as a little-endian blob, the layout the
// FT vector index expects.
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
