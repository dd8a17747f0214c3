//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/juseg/aftershocks/internal/adapter/csvstore"
	"github.com/juseg/aftershocks/internal/adapter/jma"
	"github.com/juseg/aftershocks/internal/adapter/kafka"
	"github.com/juseg/aftershocks/internal/config"
	"github.com/juseg/aftershocks/internal/domain"
	"github.com/juseg/aftershocks/internal/observability"
	"github.com/juseg/aftershocks/internal/pipeline"
)

const testTopic = "test-earthquake-records"

const listingHTML = `<html><body>
<table><tr><td>navigation</td></tr></table>
<table>
<tr><th>Date and time (JST)</th><th>Latitude</th><th>Longitude</th><th>Depth</th><th>Magnitude</th><th>Region Name</th></tr>
<tr><td>03:07 JST 6 Sep 2018</td><td>42.7N</td><td>142.0E</td><td>37km</td><td>M6.7</td><td>Iburi-chiho Chutobu</td></tr>
<tr><td>03:20 JST 6 Sep 2018</td><td>42.7N</td><td>142.0E</td><td>40km</td><td>M4.1</td><td>Iburi-chiho Chutobu</td></tr>
<tr><td>05:11 JST 6 Sep 2018</td><td>36.1N</td><td>139.9E</td><td>46km</td><td>M3.2</td><td>Southern Ibaraki Prefecture</td></tr>
</table>
</body></html>`

// publishedMessage holds a deserialized message read back from the topic.
type publishedMessage struct {
	Key     string
	Headers map[string]string
	Value   map[string]any
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker and returns its bootstrap address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	ctr, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("aftershocks-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := ctr.Terminate(context.Background()); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := ctr.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	ctrlConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrlConn.Close()

	require.NoError(t, ctrlConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func readPublished(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var value map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &value), "unmarshal message")

	return publishedMessage{Key: string(msg.Key), Headers: headers, Value: value}
}

// TestPipelineEndToEnd wires the real listing client, CSV store and Kafka
// writer, and checks that only first-seen records are published.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(listingHTML))
	}))
	t.Cleanup(source.Close)

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	dir := t.TempDir()
	cfg := &config.Config{
		Region:          "Iburi",
		SourceURL:       source.URL,
		TableIndex:      3,
		FetchTimeout:    5 * time.Second,
		SourceTimezone:  tokyo,
		DisplayTimezone: tokyo,
		BucketWidth:     3 * time.Hour,
		HistoryPath:     filepath.Join(dir, "data", "iburi.csv"),
		OutputDir:       dir,
		OutputName:      "iburi-aftershocks",
		KafkaEnabled:    true,
		KafkaBrokers:    []string{broker},
		KafkaTopic:      testTopic,
	}

	metrics := observability.NewMetricsForTesting()
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	p := pipeline.New(
		jma.NewClient(cfg, discardLogger(), metrics),
		csvstore.New(cfg.HistoryPath),
		writer,
		pipeline.Options{
			Region:      cfg.Region,
			BucketWidth: cfg.BucketWidth,
			DisplayTZ:   cfg.DisplayTimezone,
			ChartPath:   cfg.ChartPath(),
		},
		discardLogger(),
		metrics,
	)

	res, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.New)
	assert.Equal(t, 2, res.Total)

	// A second pass over the same listing adds and publishes nothing.
	res, err = p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.New)

	_, err = os.Stat(cfg.ChartPath())
	require.NoError(t, err, "chart written")

	history, err := csvstore.New(cfg.HistoryPath).Load(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	wantKeys := map[string]bool{
		domain.RecordID(history[0]): true,
		domain.RecordID(history[1]): true,
	}
	for range 2 {
		msg := readPublished(ctx, t, consumer)
		assert.True(t, wantKeys[msg.Key], "unexpected key %s", msg.Key)
		delete(wantKeys, msg.Key)

		assert.Equal(t, "Iburi-chiho Chutobu", msg.Headers["region_name"])
		_, err := time.Parse(time.RFC3339, msg.Headers["observed_at"])
		assert.NoError(t, err, "observed_at should be valid RFC3339")
		assert.Equal(t, msg.Key, msg.Value["id"])
		assert.Contains(t, msg.Value, "magnitude_value")
	}
	assert.Empty(t, wantKeys)

	// Verify no third message arrives.
	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err = consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no further messages on topic")
}
