package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/aisgo/ais-workspace/logger"
	"github.com/aisgo/ais-workspace/mq"
)

/* ========================================================================
 * Kafka Producer
 * ========================================================================
 * 职责: 实现 mq.Producer，仅同步发送；事件发布方自行决定是否异步
 * 技术: IBM/sarama
 * ======================================================================== */

func init() {
	mq.RegisterProducerFactory(mq.TypeKafka, NewProducer)
}

// Producer Kafka 同步生产者
type Producer struct {
	producer sarama.SyncProducer
	log      *logger.Logger
	mu       sync.RWMutex
	closed   bool
}

// NewProducer 创建 Kafka 生产者
func NewProducer(cfg *mq.Config, log *logger.Logger) (mq.Producer, error) {
	if cfg.Kafka == nil {
		return nil, fmt.Errorf("kafka config is required")
	}
	sc, err := buildSaramaConfig(cfg.Kafka)
	if err != nil {
		return nil, fmt.Errorf("failed to build sarama config: %w", err)
	}
	p, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	log.Info("Kafka producer started", zap.Strings("brokers", cfg.Kafka.Brokers))
	return &Producer{producer: p, log: log}, nil
}

// SendSync 同步发送；ctx 仅用于发送前的取消检查，sarama 同步接口不接收 ctx
func (p *Producer) SendSync(ctx context.Context, msg *mq.Message) (*mq.SendResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, fmt.Errorf("producer is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	partition, offset, err := p.producer.SendMessage(toProducerMessage(msg))
	if err != nil {
		p.log.Error("failed to send message", zap.String("topic", msg.Topic), zap.Error(err))
		return nil, err
	}
	return &mq.SendResult{
		MsgID:     fmt.Sprintf("%s-%d-%d", msg.Topic, partition, offset),
		Topic:     msg.Topic,
		Partition: partition,
		Offset:    offset,
	}, nil
}

// Close 关闭生产者
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if err := p.producer.Close(); err != nil {
		p.log.Error("failed to close producer", zap.Error(err))
		return err
	}
	p.log.Info("Kafka producer closed")
	return nil
}
