package config

const (
	// TopicIngestResult is the NSQ topic for per-item ingestion outcomes (completed/failed).
	TopicIngestResult = "ingest.result"
)
