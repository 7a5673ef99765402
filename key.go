package pubmed

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// searchKey computes the cache key for a search query. The query has its
// whitespace runs collapsed (case is preserved: PubMed field tags like [TIAB]
// are case-significant), is serialized with a fixed field order, and hashed.
// The result is stable across processes, platforms, and locales.
func searchKey(query string, maxResults int) string {
	normalized := strings.Join(strings.Fields(query), " ")
	payload, _ := json.Marshal(struct {
		Max   int    `json:"max"`
		Query string `json:"query"`
	}{Max: maxResults, Query: normalized})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
