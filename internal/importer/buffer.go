package importer

import (
	"context"

	"github.com/oicur0t/sematext2psql/pkg/models"
	"go.uber.org/zap"
)

// DefaultBufferSize is the number of records written per batch
const DefaultBufferSize = 10000

// BatchSink is an interface for persisting a batch of records.
// Implementations must not retain records after returning.
type BatchSink interface {
	WriteBatch(ctx context.Context, records []models.LogRecord) error
}

// MultiSink writes each batch to every sink in order, stopping at the first error
type MultiSink []BatchSink

func (m MultiSink) WriteBatch(ctx context.Context, records []models.LogRecord) error {
	for _, sink := range m {
		if err := sink.WriteBatch(ctx, records); err != nil {
			return err
		}
	}
	return nil
}

// Buffer accumulates records and flushes them to a sink once it is full
type Buffer struct {
	capacity int
	sink     BatchSink
	logger   *zap.Logger

	records []models.LogRecord
	written int64
	batches int64
}

// NewBuffer creates a buffer holding up to capacity records
func NewBuffer(capacity int, sink BatchSink, logger *zap.Logger) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &Buffer{
		capacity: capacity,
		sink:     sink,
		logger:   logger,
		records:  make([]models.LogRecord, 0, capacity),
	}
}

// Write appends a record and flushes when the buffer reaches capacity
func (b *Buffer) Write(ctx context.Context, record models.LogRecord) error {
	b.records = append(b.records, record)
	b.written++

	if len(b.records) >= b.capacity {
		return b.Flush(ctx)
	}
	return nil
}

// Flush sends the pending records to the sink and clears the buffer.
// Flushing an empty buffer does nothing. On failure the records stay pending.
func (b *Buffer) Flush(ctx context.Context) error {
	if len(b.records) == 0 {
		return nil
	}

	b.logger.Debug("Flushing batch", zap.Int("size", len(b.records)))

	if err := b.sink.WriteBatch(ctx, b.records); err != nil {
		return err
	}

	b.batches++
	b.records = b.records[:0]
	return nil
}

// Len returns the number of pending records
func (b *Buffer) Len() int {
	return len(b.records)
}

// Capacity returns the flush threshold
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Written returns the number of records accepted so far
func (b *Buffer) Written() int64 {
	return b.written
}

// Batches returns the number of successful flushes
func (b *Buffer) Batches() int64 {
	return b.batches
}
