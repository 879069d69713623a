package document

import (
	"crypto/sha256"
	"fmt"
)

// Metadata is attached to every stored chunk. Field names mirror the
// property names persisted in the vector index.
type Metadata struct {
	Source      string `json:"source"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
	ChunkSize   int    `json:"chunk_size"`
	FileHash    string `json:"file_hash,omitempty"`
}

// Fingerprint derives a stable identity for a document from its filename
// and raw bytes. The first 16 hex characters of the SHA-256 digest are
// enough for identity; the filename prefix disambiguates the
// astronomically unlikely cross-file prefix collision. Callers must treat
// the result as an opaque string.
func Fingerprint(filename string, content []byte) string {
	sum := sha256.Sum256(content)
	return fmt.Sprintf("%s_%x", filename, sum[:8])
}

// ChunkID builds the storage identifier for a chunk of a fingerprinted
// document.
func ChunkID(fingerprint string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", fingerprint, index)
}

// BuildMetadata creates the per-chunk metadata list for a freshly split
// document. TotalChunks is fixed at this point and ChunkSize records the
// chunk's length at creation time; neither is recomputed later.
func BuildMetadata(chunks []string, filename string) []Metadata {
	metas := make([]Metadata, len(chunks))
	for i, chunk := range chunks {
		metas[i] = Metadata{
			Source:      filename,
			ChunkIndex:  i,
			TotalChunks: len(chunks),
			ChunkSize:   len(chunk),
		}
	}
	return metas
}
