// Package vector holds the chunk and source types stored in the vector index,
// the collection schema and the error kinds the index reports.
package vector

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// chunkNamespace scopes chunk ids so they never collide with other UUIDv5 users.
var chunkNamespace = uuid.MustParse("6f0b5d1e-3c1a-4d8e-9b7a-2f4c8e1d0a37")

// Chunk is one embedded slice of a page.
type Chunk struct {
	ID         string
	URL        string
	Title      string
	Text       string
	Vector     []float32
	ChunkIndex int
	Type       string
	Language   string
	CreatedAt  time.Time
}

// Source is a page present in the index, derived by grouping chunks by URL.
type Source struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Match is a search hit.
type Match struct {
	Chunk Chunk
	Score float64
}

// ChunkID is stable for a given (url, chunkIndex), so re-upserting a chunk
// replaces it instead of duplicating it.
func ChunkID(url string, chunkIndex int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s#%d", url, chunkIndex))).String()
}
