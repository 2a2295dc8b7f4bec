package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// SearchKey derives the cache key for a final search result from the
// normalized query, the AI-mode flag and the viewer identity (0 = anonymous).
func SearchKey(query string, useAI bool, viewerID int64) string {
	return hashKey(fmt.Sprintf("search|q=%s|ai=%t|viewer=%d", normalize(query), useAI, viewerID))
}

// VectorKey derives the cache key for a query embedding from the normalized
// text and the embedding model name.
func VectorKey(text, model string) string {
	return hashKey(fmt.Sprintf("vector|q=%s|model=%s", normalize(text), model))
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func hashKey(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
