package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/oicur0t/sematext2psql/internal/fault"
	"github.com/oicur0t/sematext2psql/internal/storage"
	"github.com/oicur0t/sematext2psql/pkg/models"
	"go.uber.org/zap"
)

const columnsPerRow = 3

// MaxBatchSize keeps one batch under PostgreSQL's 65535 bind parameter limit
const MaxBatchSize = 65535 / columnsPerRow

// Writer inserts batches into PostgreSQL, one statement per batch
type Writer struct {
	db     storage.Execer
	table  string
	logger *zap.Logger
}

// NewWriter creates a writer for table
func NewWriter(db storage.Execer, table string, logger *zap.Logger) *Writer {
	return &Writer{
		db:     db,
		table:  table,
		logger: logger,
	}
}

// WriteBatch inserts all records in a single round trip. The batch fails as a whole.
func (w *Writer) WriteBatch(ctx context.Context, records []models.LogRecord) error {
	if len(records) == 0 {
		return nil
	}

	query, args := BuildInsert(w.table, records)
	tag, err := w.db.Exec(ctx, query, args...)
	if err != nil {
		return fault.Newf(fault.StoreWrite, "failed to insert batch of %d records", len(records)).WithOriginal(err)
	}

	w.logger.Debug("Batch inserted",
		zap.String("table", w.table),
		zap.Int("size", len(records)),
		zap.Int64("rows_affected", tag.RowsAffected()))

	return nil
}

// BuildInsert renders a multi-row insert. Row i binds $3i+1..$3i+3, in record order.
func BuildInsert(table string, records []models.LogRecord) (string, []interface{}) {
	var sb strings.Builder
	sb.Grow(64 + len(records)*len("($00000,$00000,$00000),"))
	sb.WriteString("INSERT INTO ")
	sb.WriteString(storage.TableIdentifier(table).Sanitize())
	sb.WriteString("(pod_name, message, created_at) VALUES ")

	args := make([]interface{}, 0, len(records)*columnsPerRow)
	for i, record := range records {
		if i > 0 {
			sb.WriteByte(',')
		}
		n := i * columnsPerRow
		fmt.Fprintf(&sb, "($%d,$%d,$%d)", n+1, n+2, n+3)
		args = append(args, record.PodName, record.Message, record.CreatedAt)
	}

	return sb.String(), args
}
