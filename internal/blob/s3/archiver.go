package s3blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/veilcraft/settlehouse/internal/domain"
)

// archiveBatchSize is the maximum number of stream entries drained per batch.
const archiveBatchSize = 500

// cursorPath is the object holding the last archived stream id. It is
// rewritten after every batch so a restarted archiver resumes where the
// previous one stopped.
const cursorPath = "events/cursor"

// multipartThreshold is the batch size in bytes above which the upload
// switches to the concurrent multipart path.
const multipartThreshold int64 = 8 * 1024 * 1024

// Archiver drains the durable settlement event stream into JSONL objects in
// blob storage. Each batch becomes one object keyed by upload time, and the
// stream cursor is persisted alongside the batches.
type Archiver struct {
	stream domain.EventStream
	writer domain.BlobWriter
	reader domain.BlobReader
	name   string
	logger *slog.Logger
}

// NewArchiver creates an Archiver reading the named stream.
func NewArchiver(stream domain.EventStream, writer domain.BlobWriter, reader domain.BlobReader, streamName string, logger *slog.Logger) *Archiver {
	return &Archiver{
		stream: stream,
		writer: writer,
		reader: reader,
		name:   streamName,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// LoadCursor returns the stream id the previous run stopped at, or "0" when
// no cursor object exists yet.
func (a *Archiver) LoadCursor(ctx context.Context) (string, error) {
	body, err := a.reader.Get(ctx, cursorPath)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "0", nil
		}
		return "", fmt.Errorf("s3blob: load archive cursor: %w", err)
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("s3blob: load archive cursor: %w", err)
	}
	cursor := strings.TrimSpace(string(raw))
	if cursor == "" {
		return "0", nil
	}
	return cursor, nil
}

// ArchiveBatch reads up to archiveBatchSize entries after lastID, uploads
// them as one JSONL object, persists the advanced cursor, and returns the new
// cursor together with the number of entries archived. A (lastID, 0, nil)
// return means the stream had nothing new.
func (a *Archiver) ArchiveBatch(ctx context.Context, lastID string) (string, int, error) {
	msgs, err := a.stream.StreamRead(ctx, a.name, lastID, archiveBatchSize)
	if err != nil {
		return lastID, 0, fmt.Errorf("s3blob: read event stream: %w", err)
	}
	if len(msgs) == 0 {
		return lastID, 0, nil
	}

	var buf bytes.Buffer
	for _, m := range msgs {
		buf.Write(m.Payload)
		buf.WriteByte('\n')
	}

	path := archivePath(time.Now().UTC())
	if int64(buf.Len()) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf.Bytes()), multipartThreshold)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf.Bytes()), "application/x-ndjson")
	}
	if err != nil {
		return lastID, 0, fmt.Errorf("s3blob: upload event batch: %w", err)
	}

	cursor := msgs[len(msgs)-1].ID
	if err := a.writer.Put(ctx, cursorPath, strings.NewReader(cursor), "text/plain"); err != nil {
		// The batch itself is safe; a stale cursor only re-archives it
		// after a restart.
		a.logger.WarnContext(ctx, "cursor persist failed",
			slog.String("cursor", cursor),
			slog.String("error", err.Error()),
		)
	}

	a.logger.InfoContext(ctx, "event batch archived",
		slog.String("path", path),
		slog.Int("count", len(msgs)),
		slog.String("cursor", cursor),
	)
	return cursor, len(msgs), nil
}

// archivePath builds the object key for one batch, partitioned by day:
//
//	events/2025/01/31/150405-<uuid>.jsonl
func archivePath(ts time.Time) string {
	return fmt.Sprintf("events/%s-%s.jsonl", ts.Format("2006/01/02/150405"), uuid.New().String())
}
