package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/seismic-template-trim/internal/adapter/mseed"
	"github.com/couchcryptid/seismic-template-trim/internal/domain"
	"github.com/couchcryptid/seismic-template-trim/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testTemplate() domain.Template {
	start := time.Date(2010, time.March, 5, 12, 0, 1, 700000000, time.UTC)
	return domain.Template{
		EventIndex: 12,
		Window:     domain.Window{Start: start, End: start.Add(30 * time.Second)},
		Trace: domain.Trace{
			Network: "IV", Station: "AQU", Channel: "HHZ",
			Start: start, SampleRate: 100,
			Samples: []float64{0.5, -1.25, 3, 0, 7.75},
		},
	}
}

type memStore struct {
	mu      sync.Mutex
	name    string
	objects map[string][]byte
	err     error
}

func newMemStore(name string) *memStore {
	return &memStore{name: name, objects: make(map[string][]byte)}
}

func (m *memStore) Name() string { return m.name }

func (m *memStore) Put(_ context.Context, name string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.objects[name] = append([]byte(nil), data...)
	return m.name + "://" + name, nil
}

func TestDirStore_AtomicWriteReplaces(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "templates")
	s := NewDirStore(dir)

	loc, err := s.Put(context.Background(), "12.IV.AQU..HHZ.mseed", []byte("first"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "12.IV.AQU..HHZ.mseed"), loc)

	_, err = s.Put(context.Background(), "12.IV.AQU..HHZ.mseed", []byte("second"))
	require.NoError(t, err)

	got, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestDirStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDirStore(t.TempDir()).Put(ctx, "x.mseed", []byte("x"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestWriter_WritesDecodableTemplate(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(NewDirStore(dir), nil, 0, discardLogger(), nil)
	tmpl := testTemplate()

	loc, err := w.Write(context.Background(), tmpl)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "12.IV.AQU..HHZ.mseed"), loc)

	traces, err := mseed.ReadFile(loc)
	require.NoError(t, err)
	require.Len(t, traces, 1)
	assert.Equal(t, tmpl.Trace.Samples, traces[0].Samples)
	assert.Equal(t, tmpl.Trace.Start, traces[0].Start)
}

func TestWriter_Idempotent(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(NewDirStore(dir), nil, 512, discardLogger(), nil)

	loc, err := w.Write(context.Background(), testTemplate())
	require.NoError(t, err)
	first, err := os.ReadFile(loc)
	require.NoError(t, err)

	_, err = w.Write(context.Background(), testTemplate())
	require.NoError(t, err)
	second, err := os.ReadFile(loc)
	require.NoError(t, err)

	assert.True(t, bytes.Equal(first, second))
}

func TestWriter_MirrorFailureIsNotFatal(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	primary := newMemStore("mem")
	broken := newMemStore("s3")
	broken.err = errors.New("connection refused")
	mirror := newMemStore("copy")

	w := NewWriter(primary, []Store{broken, mirror}, 0, discardLogger(), metrics)
	loc, err := w.Write(context.Background(), testTemplate())
	require.NoError(t, err)
	assert.Equal(t, "mem://12.IV.AQU..HHZ.mseed", loc)
	assert.Equal(t, primary.objects, mirror.objects)

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.SinkWrites.WithLabelValues("s3", "error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.SinkWrites.WithLabelValues("mem", "success")), 0)
}

func TestWriter_PrimaryFailureIsReturned(t *testing.T) {
	primary := newMemStore("mem")
	primary.err = errors.New("disk full")

	_, err := NewWriter(primary, nil, 0, discardLogger(), nil).Write(context.Background(), testTemplate())
	require.Error(t, err)
}

func TestWriter_EmptyTraceFails(t *testing.T) {
	tmpl := testTemplate()
	tmpl.Trace.Samples = nil

	_, err := NewWriter(newMemStore("mem"), nil, 0, discardLogger(), nil).Write(context.Background(), tmpl)
	require.Error(t, err)
}
