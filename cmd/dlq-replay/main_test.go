package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"testing"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
)

type fakeClient struct {
	partitions []int32
	oldest     map[int32]int64
	newest     map[int32]int64
}

func (c *fakeClient) GetOffset(_ string, partition int32, at int64) (int64, error) {
	if at == sarama.OffsetOldest {
		return c.oldest[partition], nil
	}
	return c.newest[partition], nil
}

func (c *fakeClient) Partitions(string) ([]int32, error) { return c.partitions, nil }
func (c *fakeClient) Close() error                       { return nil }

type fakePartition struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
}

func (p *fakePartition) Messages() <-chan *sarama.ConsumerMessage { return p.messages }
func (p *fakePartition) Errors() <-chan *sarama.ConsumerError     { return p.errors }
func (p *fakePartition) Close() error                             { return nil }

type fakeSource struct {
	byPartition map[int32][]*sarama.ConsumerMessage
	starts      map[int32]int64
}

func (s *fakeSource) ConsumePartition(_ string, partition int32, offset int64) (partitionConsumer, error) {
	if s.starts == nil {
		s.starts = map[int32]int64{}
	}
	s.starts[partition] = offset

	pc := &fakePartition{
		messages: make(chan *sarama.ConsumerMessage, len(s.byPartition[partition])),
		errors:   make(chan *sarama.ConsumerError),
	}
	for _, msg := range s.byPartition[partition] {
		if msg.Offset >= offset {
			pc.messages <- msg
		}
	}
	return pc, nil
}

type published struct {
	topic string
	key   string
	value []byte
}

type fakePublisher struct {
	sent []published
	err  error
}

func (p *fakePublisher) Publish(topic, key string, value []byte, _ ...sarama.RecordHeader) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{topic: topic, key: key, value: value})
	return nil
}

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return log.NewEntry(logger)
}

func newReplayer(cfg config, client offsetClient, source partitionSource, producer publisher) *replayer {
	return &replayer{
		cfg:      cfg,
		client:   client,
		source:   source,
		producer: producer,
		logger:   quietLogger(),
		now:      func() time.Time { return fixedNow },
	}
}

func testConfig(execute bool) config {
	return config{
		brokers:     []string{"localhost:9092"},
		sourceTopic: kafka.TopicDeadLetterQueue,
		eventsTopic: kafka.TopicOrderEvents,
		limit:       10,
		execute:     execute,
		idleTimeout: 100 * time.Millisecond,
	}
}

func consumerLetter(t *testing.T, offset int64) *sarama.ConsumerMessage {
	t.Helper()
	raw, err := json.Marshal(kafka.DeadLetter{
		OriginalTopic: kafka.TopicPaymentCallbacks,
		OriginalKey:   "240501_1",
		OriginalValue: `{"data":"{}","mac":"abc","type":1}`,
		ErrorMessage:  "decode callback",
	})
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Offset: offset, Value: raw}
}

func outboxLetter(t *testing.T, offset int64) *sarama.ConsumerMessage {
	t.Helper()
	inner, err := json.Marshal(outbox.DeadLetter{
		OutboxID:      "evt-1",
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     "order.created",
		Payload:       json.RawMessage(`{"orderId":"order-1"}`),
		PublishError:  "broker down",
	})
	require.NoError(t, err)
	raw, err := json.Marshal(kafka.Envelope{
		ID:          "evt-1",
		AggregateID: "order-1",
		EventType:   "order.created",
		Payload:     inner,
	})
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Offset: offset, Value: raw}
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		env     map[string]string
		wantErr string
		check   func(t *testing.T, cfg config)
	}{
		{
			name: "brokers from env",
			env:  map[string]string{"MARKETPLACE_KAFKA_BROKERS": "k1:9092, k2:9092,"},
			check: func(t *testing.T, cfg config) {
				assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.brokers)
				assert.Equal(t, kafka.TopicDeadLetterQueue, cfg.sourceTopic)
				assert.False(t, cfg.execute)
			},
		},
		{
			name: "flags win",
			args: []string{"-brokers", "k3:9092", "-execute", "-limit", "5"},
			env:  map[string]string{"MARKETPLACE_KAFKA_BROKERS": "k1:9092"},
			check: func(t *testing.T, cfg config) {
				assert.Equal(t, []string{"k3:9092"}, cfg.brokers)
				assert.True(t, cfg.execute)
				assert.Equal(t, 5, cfg.limit)
			},
		},
		{name: "no brokers", wantErr: "kafka brokers are required"},
		{name: "bad limit", args: []string{"-brokers", "k1:9092", "-limit", "0"}, wantErr: "limit must be > 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := flag.NewFlagSet("dlq-replay", flag.ContinueOnError)
			fs.SetOutput(io.Discard)
			cfg, err := parseFlags(fs, tt.args, func(key string) (string, bool) {
				v, ok := tt.env[key]
				return v, ok
			})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestExtract(t *testing.T) {
	r := newReplayer(testConfig(false), nil, nil, nil)

	got, err := r.extract(consumerLetter(t, 0))
	require.NoError(t, err)
	assert.Equal(t, kafka.TopicPaymentCallbacks, got.topic)
	assert.Equal(t, "240501_1", got.key)
	assert.JSONEq(t, `{"data":"{}","mac":"abc","type":1}`, string(got.value))

	got, err = r.extract(outboxLetter(t, 1))
	require.NoError(t, err)
	assert.Equal(t, kafka.TopicOrderEvents, got.topic)
	assert.Equal(t, "order-1", got.key)
	var env kafka.Envelope
	require.NoError(t, json.Unmarshal(got.value, &env))
	assert.Equal(t, "evt-1", env.ID)
	assert.Equal(t, "order", env.AggregateType)
	assert.Equal(t, "order.created", env.EventType)
	assert.JSONEq(t, `{"orderId":"order-1"}`, string(env.Payload))
	assert.True(t, fixedNow.Equal(env.PublishedAt))

	_, err = r.extract(&sarama.ConsumerMessage{Value: []byte("not json")})
	assert.Error(t, err)

	_, err = r.extract(&sarama.ConsumerMessage{Value: []byte(`{"id":"x","event_type":"order.created"}`)})
	assert.Error(t, err)
}

func TestReplay_DryRunDoesNotPublish(t *testing.T) {
	client := &fakeClient{
		partitions: []int32{0},
		oldest:     map[int32]int64{0: 0},
		newest:     map[int32]int64{0: 3},
	}
	source := &fakeSource{byPartition: map[int32][]*sarama.ConsumerMessage{
		0: {consumerLetter(t, 0), {Offset: 1, Value: []byte("garbage")}, outboxLetter(t, 2)},
	}}

	stats, err := newReplayer(testConfig(false), client, source, nil).run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, replayStats{processed: 3, replayed: 2, skipped: 1}, stats)
}

func TestReplay_ExecutePublishesAcrossPartitions(t *testing.T) {
	client := &fakeClient{
		partitions: []int32{1, 0},
		oldest:     map[int32]int64{0: 0, 1: 0},
		newest:     map[int32]int64{0: 1, 1: 1},
	}
	source := &fakeSource{byPartition: map[int32][]*sarama.ConsumerMessage{
		0: {consumerLetter(t, 0)},
		1: {outboxLetter(t, 0)},
	}}
	producer := &fakePublisher{}

	stats, err := newReplayer(testConfig(true), client, source, producer).run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.replayed)
	require.Len(t, producer.sent, 2)
	assert.Equal(t, kafka.TopicPaymentCallbacks, producer.sent[0].topic)
	assert.Equal(t, kafka.TopicOrderEvents, producer.sent[1].topic)
}

func TestReplay_LimitAndFromNewest(t *testing.T) {
	client := &fakeClient{
		partitions: []int32{0},
		oldest:     map[int32]int64{0: 0},
		newest:     map[int32]int64{0: 3},
	}
	source := &fakeSource{byPartition: map[int32][]*sarama.ConsumerMessage{
		0: {consumerLetter(t, 0), consumerLetter(t, 1), consumerLetter(t, 2)},
	}}
	cfg := testConfig(false)
	cfg.limit = 1
	cfg.fromNewest = true

	stats, err := newReplayer(cfg, client, source, nil).run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.processed)
	assert.Equal(t, int64(2), source.starts[0])
}

func TestReplay_Errors(t *testing.T) {
	_, err := newReplayer(testConfig(true), &fakeClient{}, &fakeSource{}, nil).run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "producer is required")

	client := &fakeClient{
		partitions: []int32{0},
		oldest:     map[int32]int64{0: 0},
		newest:     map[int32]int64{0: 1},
	}
	source := &fakeSource{byPartition: map[int32][]*sarama.ConsumerMessage{0: {consumerLetter(t, 0)}}}
	producer := &fakePublisher{err: errors.New("broker down")}

	_, err = newReplayer(testConfig(true), client, source, producer).run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}
