//go:build integration

package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/aisgo/ais-workspace/logger"
	"github.com/aisgo/ais-workspace/mq"
)

func TestWorkspaceEventRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skip integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tckafka.Run(ctx, "confluentinc/cp-kafka:7.5.0", tckafka.WithClusterID("workspace-test"))
	if err != nil {
		t.Fatalf("start kafka container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	brokers, err := container.Brokers(ctx)
	if err != nil {
		t.Fatalf("brokers: %v", err)
	}

	kafkaCfg := mq.DefaultKafkaConfig()
	kafkaCfg.Brokers = brokers
	kafkaCfg.Consumer.GroupID = "group-" + uuid.NewString()
	kafkaCfg.Consumer.InitialOffset = "oldest"
	cfg := &mq.Config{Type: mq.TypeKafka, Kafka: kafkaCfg}

	sc, err := buildSaramaConfig(kafkaCfg)
	if err != nil {
		t.Fatalf("sarama config: %v", err)
	}
	admin, err := sarama.NewClusterAdmin(brokers, sc)
	if err != nil {
		t.Fatalf("cluster admin: %v", err)
	}
	defer admin.Close()

	topic := "workspace-events-" + uuid.NewString()
	if err := admin.CreateTopic(topic, &sarama.TopicDetail{NumPartitions: 1, ReplicationFactor: 1}, false); err != nil &&
		!errors.Is(err, sarama.ErrTopicAlreadyExists) {
		t.Fatalf("create topic: %v", err)
	}

	consumer, err := NewConsumer(cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	received := make(chan *mq.ConsumedMessage, 1)
	_ = consumer.Subscribe(topic, func(_ context.Context, msgs []*mq.ConsumedMessage) (mq.ConsumeResult, error) {
		received <- msgs[0]
		return mq.ConsumeSuccess, nil
	})
	if err := consumer.Start(); err != nil {
		t.Fatalf("start consumer: %v", err)
	}
	t.Cleanup(func() { _ = consumer.Close() })

	producer, err := NewProducer(cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("new producer: %v", err)
	}
	t.Cleanup(func() { _ = producer.Close() })

	msg := mq.NewMessage(topic, []byte(`{"type":"workspace.switched"}`)).
		WithKey("ws-acme").
		WithTag("workspace.switched")
	if _, err := producer.SendSync(ctx, msg); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case got := <-received:
		if got.Key != "ws-acme" || got.Tag != "workspace.switched" {
			t.Fatalf("unexpected message: key=%q tag=%q", got.Key, got.Tag)
		}
	case <-time.After(20 * time.Second):
		t.Fatalf("timeout waiting for message")
	}
}
