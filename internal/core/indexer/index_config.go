package indexer

import "time"

// IndexConfig tunes the indexing pipeline.
//
// TargetTokens:    approximate tokens per chunk (e.g., 500).
// OverlapTokens:   token overlap between consecutive chunks (e.g., 50).
// BatchSize:       how many chunks to embed in one provider call (e.g., 32).
// DownloadWorkers: concurrent source downloads per folder.
// RetryAttempts:   tries per transient provider failure.
// StaleAfter:      how long a folder may sit in "indexing" before the
//                  sweeper declares the run dead.
// SweepEvery:      sweeper interval.
type IndexConfig struct {
	TargetTokens    int
	OverlapTokens   int
	BatchSize       int
	DownloadWorkers int
	RetryAttempts   int
	StaleAfter      time.Duration
	SweepEvery      time.Duration
}

func DefaultIndexConfig() *IndexConfig {
	return &IndexConfig{
		TargetTokens:    500,
		OverlapTokens:   50,
		BatchSize:       32,
		DownloadWorkers: 4,
		RetryAttempts:   3,
		StaleAfter:      30 * time.Minute,
		SweepEvery:      5 * time.Minute,
	}
}
