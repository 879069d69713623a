package config

const (
	// TopicDocumentIngest is the NSQ topic for document ingestion tasks
	// (extract, chunk, embed, store).
	TopicDocumentIngest = "document.ingest"
)
