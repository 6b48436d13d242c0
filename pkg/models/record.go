package models

import (
	"time"
)

// LogRecord is a single imported log line
type LogRecord struct {
	PodName   string    `json:"pod_name" bson:"pod_name"`
	Message   string    `json:"message" bson:"message"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// ImportSummary describes a finished (or aborted) import run
type ImportSummary struct {
	Lines    int64         `json:"lines"`
	Records  int64         `json:"records"`
	Batches  int64         `json:"batches"`
	Duration time.Duration `json:"duration"`
}
