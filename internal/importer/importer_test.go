package importer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/oicur0t/sematext2psql/internal/fault"
	"github.com/oicur0t/sematext2psql/internal/source"
	"github.com/oicur0t/sematext2psql/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestImporter(input string, capacity int, conn storage.Execer) *Importer {
	writer := NewWriter(conn, "sematext_logs", zap.NewNop())
	buffer := NewBuffer(capacity, writer, zap.NewNop())
	return NewImporter(source.NewReaderSource(strings.NewReader(input)), NewParser(DefaultMarker), buffer, 0, zap.NewNop())
}

func TestRun_SingleLineCapacityOne(t *testing.T) {
	conn := &fakeConn{}

	summary, err := newTestImporter(sampleLine+"\n", 1, conn).Run(context.Background())

	require.NoError(t, err)
	require.Len(t, conn.calls, 1)
	assert.Equal(t, `INSERT INTO "sematext_logs"(pod_name, message, created_at) VALUES ($1,$2,$3)`, conn.calls[0].sql)
	assert.Equal(t,
		[]interface{}{"sidekiq-1", "hello", time.Date(2022, 10, 21, 12, 0, 0, 0, time.UTC)},
		conn.calls[0].args)
	assert.Equal(t, int64(1), summary.Lines)
	assert.Equal(t, int64(1), summary.Records)
	assert.Equal(t, int64(1), summary.Batches)
}

func TestRun_MissingMarkerAbortsAfterSetup(t *testing.T) {
	conn := &fakeConn{}
	ctx := context.Background()
	require.NoError(t, storage.NewPostgres(conn, "sematext_logs", zap.NewNop()).EnsureSchema(ctx))

	input := `{"@timestamp":"2022-10-21T12:00:00Z","message":"no marker"}` + "\n" + sampleLine + "\n"
	summary, err := newTestImporter(input, 1, conn).Run(ctx)

	require.Error(t, err)
	assert.Equal(t, fault.InputFormat, fault.CodeOf(err))
	assert.Contains(t, err.Error(), "line 1")
	assert.Len(t, conn.calls, len(storage.SchemaStatements("sematext_logs")))
	assert.Empty(t, conn.insertCalls())
	assert.Equal(t, int64(0), summary.Records)
}

func TestRun_PartialBufferFlushedOnce(t *testing.T) {
	conn := &fakeConn{}
	second := `b.json:{"@timestamp":"2022-10-21T12:00:01Z","kubernetes":{"pod":{"name":"sidekiq-2"}},"message":"world"}`

	summary, err := newTestImporter(sampleLine+"\n"+second+"\n", DefaultBufferSize, conn).Run(context.Background())

	require.NoError(t, err)
	require.Len(t, conn.calls, 1)
	assert.Equal(t, `INSERT INTO "sematext_logs"(pod_name, message, created_at) VALUES ($1,$2,$3),($4,$5,$6)`, conn.calls[0].sql)
	assert.Equal(t, []interface{}{
		"sidekiq-1", "hello", time.Date(2022, 10, 21, 12, 0, 0, 0, time.UTC),
		"sidekiq-2", "world", time.Date(2022, 10, 21, 12, 0, 1, 0, time.UTC),
	}, conn.calls[0].args)
	assert.Equal(t, int64(1), summary.Batches)
}

func TestRun_EmptyInput(t *testing.T) {
	conn := &fakeConn{}

	summary, err := newTestImporter("", 3, conn).Run(context.Background())

	require.NoError(t, err)
	assert.Empty(t, conn.calls)
	assert.Equal(t, int64(0), summary.Lines)
}

func TestRun_ExactMultipleOfCapacity(t *testing.T) {
	conn := &fakeConn{}
	input := strings.Repeat(sampleLine+"\n", 6)

	summary, err := newTestImporter(input, 3, conn).Run(context.Background())

	require.NoError(t, err)
	assert.Len(t, conn.calls, 2)
	assert.Equal(t, int64(6), summary.Records)
	assert.Equal(t, int64(2), summary.Batches)
}

func TestRun_LastLineWithoutNewline(t *testing.T) {
	conn := &fakeConn{}

	summary, err := newTestImporter(sampleLine+"\n"+sampleLine, 10, conn).Run(context.Background())

	require.NoError(t, err)
	require.Len(t, conn.calls, 1)
	assert.Len(t, conn.calls[0].args, 6)
	assert.Equal(t, int64(2), summary.Lines)
}

func TestRun_BadTimestampNamesLine(t *testing.T) {
	conn := &fakeConn{}
	input := sampleLine + "\n" + sampleLine + "\n" + `c.json:{"@timestamp":"yesterday"}` + "\n"

	_, err := newTestImporter(input, 10, conn).Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, fault.Field, fault.CodeOf(err))
	assert.Contains(t, err.Error(), "line 3")
	assert.Empty(t, conn.calls, "pending records of an aborted run are not flushed")
}

func TestRun_WriteFailureStopsRun(t *testing.T) {
	conn := &fakeConn{failAfter: 1, err: errors.New("connection reset by peer")}
	input := strings.Repeat(sampleLine+"\n", 10)

	summary, err := newTestImporter(input, 2, conn).Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, fault.StoreWrite, fault.CodeOf(err))
	assert.Contains(t, err.Error(), "line 4")
	assert.Len(t, conn.calls, 2)
	assert.Equal(t, int64(4), summary.Lines)
	assert.Equal(t, int64(1), summary.Batches)
}

func TestRun_FinalFlushFailure(t *testing.T) {
	conn := &fakeConn{err: errors.New("server closed the connection unexpectedly")}

	_, err := newTestImporter(sampleLine+"\n", 10, conn).Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, fault.StoreWrite, fault.CodeOf(err))
	assert.Contains(t, err.Error(), "final flush")
}

type failingSource struct {
	lines []string
	err   error
}

func (s *failingSource) ReadLine() (string, error) {
	if len(s.lines) == 0 {
		return "", s.err
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func (s *failingSource) Close() error {
	return nil
}

func TestRun_ReadFailure(t *testing.T) {
	conn := &fakeConn{}
	src := &failingSource{lines: []string{sampleLine}, err: errors.New("input/output error")}
	buffer := NewBuffer(10, NewWriter(conn, "sematext_logs", zap.NewNop()), zap.NewNop())

	_, err := NewImporter(src, NewParser(DefaultMarker), buffer, 0, zap.NewNop()).Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, fault.InputRead, fault.CodeOf(err))
	assert.Contains(t, err.Error(), "line 2")
	assert.Contains(t, err.Error(), "input/output error")
	assert.Empty(t, conn.calls)
}

func TestRun_LogsProgress(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	conn := &fakeConn{}
	buffer := NewBuffer(2, NewWriter(conn, "sematext_logs", zap.NewNop()), zap.NewNop())
	src := source.NewReaderSource(strings.NewReader(strings.Repeat(sampleLine+"\n", 7)))

	_, err := NewImporter(src, NewParser(DefaultMarker), buffer, 3, zap.New(core)).Run(context.Background())

	require.NoError(t, err)
	progress := logs.FilterMessage("Import progress").All()
	require.Len(t, progress, 2)
	assert.Equal(t, int64(3), progress[0].ContextMap()["lines"])
	assert.Equal(t, int64(6), progress[1].ContextMap()["lines"])
	assert.Equal(t, int64(3), progress[1].ContextMap()["batches"])
}
