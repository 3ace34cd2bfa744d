//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/seismic-template-trim/internal/adapter/archive"
	"github.com/couchcryptid/seismic-template-trim/internal/adapter/kafka"
	"github.com/couchcryptid/seismic-template-trim/internal/adapter/stationxml"
	"github.com/couchcryptid/seismic-template-trim/internal/catalog"
	"github.com/couchcryptid/seismic-template-trim/internal/config"
	"github.com/couchcryptid/seismic-template-trim/internal/domain"
	"github.com/couchcryptid/seismic-template-trim/internal/inventory"
	"github.com/couchcryptid/seismic-template-trim/internal/mockdata"
	"github.com/couchcryptid/seismic-template-trim/internal/observability"
	"github.com/couchcryptid/seismic-template-trim/internal/pipeline"
	"github.com/couchcryptid/seismic-template-trim/internal/traveltime"
	"github.com/couchcryptid/seismic-template-trim/internal/waveform"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testTopic = "test-templates"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker for the duration of the test.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("template-trim"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func newConsumer(broker string) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTopic,
		Partition:   0,
		StartOffset: kafkago.FirstOffset,
		MaxWait:     500 * time.Millisecond,
	})
}

type published struct {
	Record  domain.TemplateRecord
	Key     string
	Headers map[string]string
}

func readPublished(ctx context.Context, t *testing.T, consumer *kafkago.Reader) published {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from template topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var rec domain.TemplateRecord
	require.NoError(t, json.Unmarshal(msg.Value, &rec))
	return published{Record: rec, Key: string(msg.Key), Headers: headers}
}

// TestKafkaWriter_Record verifies a template record round-trips through
// the broker with its key and headers.
func TestKafkaWriter_Record(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	cfg := &config.Config{Kafka: config.Kafka{Enabled: true, Brokers: []string{broker}, Topic: testTopic}}
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { writer.Close() })

	origin := time.Date(2010, time.March, 5, 12, 0, 3, 500000000, time.UTC)
	rec := domain.TemplateRecord{
		Name:        "0.IV.AQU..HHZ.mseed",
		Location:    "/data/templates/0.IV.AQU..HHZ.mseed",
		EventIndex:  0,
		Network:     "IV",
		Station:     "AQU",
		Channel:     "HHZ",
		Origin:      origin,
		Magnitude:   2.1,
		Phase:       "s",
		ArrivalSec:  8.2,
		Start:       origin.Add(-1800 * time.Millisecond),
		End:         origin.Add(28200 * time.Millisecond),
		SampleRate:  100,
		SampleCount: 3001,
	}
	require.NoError(t, writer.Record(ctx, rec))

	consumer := newConsumer(broker)
	t.Cleanup(func() { consumer.Close() })

	got := readPublished(ctx, t, consumer)
	assert.Equal(t, "IV.AQU", got.Key)
	assert.Equal(t, "0.IV.AQU..HHZ.mseed", got.Headers["template"])
	assert.Equal(t, "0", got.Headers["event_index"])
	assert.Equal(t, origin.Format(time.RFC3339Nano), got.Headers["origin"])
	assert.Equal(t, rec.Name, got.Record.Name)
	assert.True(t, rec.Origin.Equal(got.Record.Origin))
	assert.Equal(t, 3001, got.Record.SampleCount)
}

// TestExtractor_PublishesToKafka runs a full extraction over the mock
// archive with the Kafka writer as recorder.
func TestExtractor_PublishesToKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	layout, err := mockdata.Generate(t.TempDir())
	require.NoError(t, err)
	cfg := layout.Config
	cfg.Kafka = config.Kafka{Enabled: true, Brokers: []string{broker}, Topic: testTopic}

	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()

	events, err := catalog.ReadZMAPFile(cfg.Catalog, cfg.TimePrecision)
	require.NoError(t, err)
	days, err := catalog.ReadDayListFile(cfg.DayList)
	require.NoError(t, err)
	model, err := traveltime.Load(cfg.Model.Dir, cfg.Model.Name)
	require.NoError(t, err)

	writer := kafka.NewWriter(cfg, logger)
	t.Cleanup(func() { writer.Close() })

	p := pipeline.New(events, pipeline.Options{
		Stations: cfg.Stations,
		Channels: cfg.Channels,
		Days:     days,
		Before:   cfg.WindowBefore(),
		After:    cfg.WindowAfter(),
		Workers:  2,
	}, pipeline.Stages{
		Resolver: inventory.NewResolver(
			[]inventory.CoordinateSource{stationxml.NewFile(layout.Inventory)},
			cfg.Inventory.Timeout, logger, metrics),
		Loader:    waveform.NewLoader(cfg.ContinuousDir, waveform.FilterSpec{Low: cfg.Bandpass.Low, High: cfg.Bandpass.High, Corners: cfg.Bandpass.Corners}, logger),
		Timer:     model,
		Writer:    archive.NewWriter(archive.NewDirStore(layout.TemplateDir), nil, cfg.RecordLength, logger, metrics),
		Recorders: []pipeline.Recorder{writer},
	}, logger, metrics)

	summary, err := p.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 8, summary.Produced)

	consumer := newConsumer(broker)
	t.Cleanup(func() { consumer.Close() })

	seen := make(map[string]bool)
	for range summary.Produced {
		got := readPublished(ctx, t, consumer)
		seen[got.Headers["template"]] = true
		assert.Equal(t, got.Record.Network+"."+got.Record.Station, got.Key)
	}
	assert.Len(t, seen, summary.Produced)
	assert.True(t, seen["0.IV.AQU..HHZ.mseed"])
	assert.True(t, seen["1.IV.CAMP..HHZ.mseed"])
}
