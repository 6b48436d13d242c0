package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/oicur0t/sematext2psql/internal/fault"
	"github.com/oicur0t/sematext2psql/internal/source"
	"github.com/oicur0t/sematext2psql/pkg/models"
	"go.uber.org/zap"
)

// DefaultProgressEvery is how many lines pass between progress log entries
const DefaultProgressEvery = 10000

// Importer drives lines from a source through the parser into the buffer
type Importer struct {
	source        source.LineSource
	parser        *Parser
	buffer        *Buffer
	progressEvery int64
	logger        *zap.Logger

	lines int64
	start time.Time
}

// NewImporter creates an importer. progressEvery of 0 disables progress logging.
func NewImporter(src source.LineSource, parser *Parser, buffer *Buffer, progressEvery int64, logger *zap.Logger) *Importer {
	return &Importer{
		source:        src,
		parser:        parser,
		buffer:        buffer,
		progressEvery: progressEvery,
		logger:        logger,
	}
}

// Run reads the source to the end and flushes the remaining records.
// The first bad line or failed write stops the run; nothing is skipped.
func (i *Importer) Run(ctx context.Context) (models.ImportSummary, error) {
	i.start = time.Now()
	i.lines = 0

	for {
		raw, err := i.source.ReadLine()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return i.summary(), fault.Newf(fault.InputRead, "failed to read line %d", i.lines+1).WithOriginal(err)
		}
		i.lines++

		record, err := i.parser.Parse(raw)
		if err != nil {
			return i.summary(), fmt.Errorf("line %d: %w", i.lines, err)
		}

		if err := i.buffer.Write(ctx, record); err != nil {
			return i.summary(), fmt.Errorf("line %d: %w", i.lines, err)
		}

		if i.progressEvery > 0 && i.lines%i.progressEvery == 0 {
			i.logger.Info("Import progress",
				zap.Int64("lines", i.lines),
				zap.Int64("batches", i.buffer.Batches()))
		}
	}

	i.logger.Debug("Input exhausted, flushing final batch", zap.Int("pending", i.buffer.Len()))
	if err := i.buffer.Flush(ctx); err != nil {
		return i.summary(), fmt.Errorf("final flush: %w", err)
	}

	return i.summary(), nil
}

func (i *Importer) summary() models.ImportSummary {
	return models.ImportSummary{
		Lines:    i.lines,
		Records:  i.buffer.Written(),
		Batches:  i.buffer.Batches(),
		Duration: time.Since(i.start),
	}
}
