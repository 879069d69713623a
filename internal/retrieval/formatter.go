package retrieval

import (
	"fmt"
	"strings"

	"docquery/internal/chunkstore"
)

// Fixed signal strings the consuming reasoning layer keys on. They must
// stay distinct from any formatted result block.
const (
	NoDocumentsMessage = "No documents have been uploaded yet. Please upload a document first."
	NoResultsMessage   = "No relevant information found in the uploaded documents."
)

// FormatResults renders ranked query results into the model-consumable
// block: one section per result with provenance, closed by a footer that
// instructs the consumer to verify topical relevance before using
// anything. Zero results yield the distinct not-found signal string.
func FormatResults(results []chunkstore.Result) string {
	if len(results) == 0 {
		return NoResultsMessage
	}

	var b strings.Builder
	b.WriteString("SEARCH RESULTS FROM UPLOADED DOCUMENTS:\n")
	b.WriteString("(Note: These are the most semantically similar chunks found. Verify they actually answer the query.)\n\n")

	for i, res := range results {
		fmt.Fprintf(&b, "--- Result %d ---\n", i+1)
		fmt.Fprintf(&b, "Source: %s\n", res.Metadata.Source)
		fmt.Fprintf(&b, "Chunk: %d\n", res.Metadata.ChunkIndex)
		fmt.Fprintf(&b, "Content:\n%s\n", res.Content)
		b.WriteString(strings.Repeat("-", 80))
		b.WriteString("\n\n")
	}

	b.WriteString("\nIMPORTANT: Only use information from these results if it DIRECTLY answers the user's question. ")
	b.WriteString("If the query asked about person/topic X but these results are about person/topic Y, ")
	b.WriteString("you MUST tell the user that information about X was not found in the documents.\n")

	return b.String()
}
