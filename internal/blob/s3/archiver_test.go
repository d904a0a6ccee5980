package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilcraft/settlehouse/internal/domain"
)

// fakeStream serves a fixed slice of messages after the requested id.
type fakeStream struct {
	msgs []domain.StreamMessage
}

func (f *fakeStream) StreamAppend(context.Context, string, []byte) error { return nil }

func (f *fakeStream) StreamRead(_ context.Context, _ string, lastID string, count int) ([]domain.StreamMessage, error) {
	var out []domain.StreamMessage
	past := lastID == "0"
	for _, m := range f.msgs {
		if past {
			out = append(out, m)
			if len(out) == count {
				break
			}
			continue
		}
		if m.ID == lastID {
			past = true
		}
	}
	return out, nil
}

// fakeWriter records uploads keyed by path.
type fakeWriter struct {
	objects    map[string][]byte
	multiparts []string
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{objects: make(map[string][]byte)}
}

func (f *fakeWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.objects[path] = b
	return nil
}

func (f *fakeWriter) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.objects[path] = b
	f.multiparts = append(f.multiparts, path)
	return nil
}

// fakeReader serves the writer's objects back.
type fakeReader struct {
	writer *fakeWriter
}

func (f *fakeReader) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := f.writer.objects[path]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeReader) List(context.Context, string) ([]domain.BlobInfo, error) {
	return nil, nil
}

func newArchiverFixture(msgs []domain.StreamMessage) (*Archiver, *fakeWriter) {
	w := newFakeWriter()
	a := NewArchiver(&fakeStream{msgs: msgs}, w, &fakeReader{writer: w}, "stream:settlement", slog.Default())
	return a, w
}

func TestArchiveBatchUploadsAndPersistsCursor(t *testing.T) {
	a, w := newArchiverFixture([]domain.StreamMessage{
		{ID: "1-0", Payload: []byte(`{"kind":"ask_order_executed"}`)},
		{ID: "2-0", Payload: []byte(`{"kind":"auction_created"}`)},
	})

	cursor, n, err := a.ArchiveBatch(context.Background(), "0")
	require.NoError(t, err)
	assert.Equal(t, "2-0", cursor)
	assert.Equal(t, 2, n)

	// One batch object plus the cursor object.
	require.Len(t, w.objects, 2)
	assert.Equal(t, []byte("2-0"), w.objects[cursorPath])

	for path, body := range w.objects {
		if path == cursorPath {
			continue
		}
		assert.True(t, strings.HasPrefix(path, "events/"))
		lines := strings.Split(strings.TrimRight(string(body), "\n"), "\n")
		assert.Len(t, lines, 2)
	}
}

func TestArchiveBatchEmptyStream(t *testing.T) {
	a, w := newArchiverFixture(nil)

	cursor, n, err := a.ArchiveBatch(context.Background(), "5-0")
	require.NoError(t, err)
	assert.Equal(t, "5-0", cursor)
	assert.Zero(t, n)
	assert.Empty(t, w.objects)
}

func TestArchiveBatchLargeBatchGoesMultipart(t *testing.T) {
	big := bytes.Repeat([]byte("x"), int(multipartThreshold))
	a, w := newArchiverFixture([]domain.StreamMessage{{ID: "1-0", Payload: big}})

	_, n, err := a.ArchiveBatch(context.Background(), "0")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, w.multiparts, 1)
	assert.True(t, strings.HasPrefix(w.multiparts[0], "events/"))
}

func TestLoadCursor(t *testing.T) {
	a, w := newArchiverFixture(nil)

	// No cursor object yet: reading starts from the beginning.
	cursor, err := a.LoadCursor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0", cursor)

	w.objects[cursorPath] = []byte("7-3\n")
	cursor, err = a.LoadCursor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "7-3", cursor)
}

func TestArchiveBatchResumesFromCursor(t *testing.T) {
	a, w := newArchiverFixture([]domain.StreamMessage{
		{ID: "1-0", Payload: []byte(`{"n":1}`)},
		{ID: "2-0", Payload: []byte(`{"n":2}`)},
		{ID: "3-0", Payload: []byte(`{"n":3}`)},
	})

	cursor, n, err := a.ArchiveBatch(context.Background(), "2-0")
	require.NoError(t, err)
	assert.Equal(t, "3-0", cursor)
	assert.Equal(t, 1, n)

	// A fresh archiver picks up the persisted cursor.
	fresh := NewArchiver(&fakeStream{}, w, &fakeReader{writer: w}, "stream:settlement", slog.Default())
	resumed, err := fresh.LoadCursor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3-0", resumed)
}
