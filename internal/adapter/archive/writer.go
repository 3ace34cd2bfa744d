package archive

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/seismic-template-trim/internal/adapter/mseed"
	"github.com/couchcryptid/seismic-template-trim/internal/domain"
	"github.com/couchcryptid/seismic-template-trim/internal/observability"
)

// Writer encodes templates as miniSEED and stores them. The primary store
// must succeed; mirrors are best effort.
// It implements pipeline.TemplateWriter.
type Writer struct {
	primary   Store
	mirrors   []Store
	recordLen int
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewWriter creates a writer. A recordLen of zero uses mseed.DefaultRecordLength.
func NewWriter(primary Store, mirrors []Store, recordLen int, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	if recordLen == 0 {
		recordLen = mseed.DefaultRecordLength
	}
	return &Writer{
		primary:   primary,
		mirrors:   mirrors,
		recordLen: recordLen,
		logger:    logger.With("component", "archive"),
		metrics:   metrics,
	}
}

// Write encodes the template and returns its location in the primary store.
func (w *Writer) Write(ctx context.Context, tmpl domain.Template) (string, error) {
	data, err := mseed.Encode(tmpl.Trace, w.recordLen)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", tmpl.Name(), err)
	}

	location, err := w.primary.Put(ctx, tmpl.Name(), data)
	w.observe(w.primary.Name(), err)
	if err != nil {
		return "", err
	}

	for _, m := range w.mirrors {
		_, err := m.Put(ctx, tmpl.Name(), data)
		w.observe(m.Name(), err)
		if err != nil {
			w.logger.Warn("mirror write failed", "store", m.Name(), "template", tmpl.Name(), "error", err)
		}
	}
	return location, nil
}

func (w *Writer) observe(store string, err error) {
	if w.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	w.metrics.SinkWrites.WithLabelValues(store, outcome).Inc()
}
