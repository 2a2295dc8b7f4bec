package vector

import (
	"github.com/redis/rueidis"

	"go.uber.org/zap"
)

// NewStoreForTest wraps an existing (usually mocked) client.
func NewStoreForTest(c rueidis.Client) *Store {
	return &Store{client: c, logger: zap.NewNop()}
}
