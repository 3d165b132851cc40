package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/aisgo/ais-workspace/logger"
	"github.com/aisgo/ais-workspace/mq"
)

/* ========================================================================
 * Kafka Consumer
 * ========================================================================
 * 职责: 实现 mq.Consumer，基于消费组；处理失败按线性退避重试，
 *       仍失败则不提交 offset，由 rebalance 后重新投递
 * ======================================================================== */

const retryBaseDelay = 100 * time.Millisecond

func init() {
	mq.RegisterConsumerFactory(mq.TypeKafka, NewConsumer)
}

// Consumer Kafka 消费组适配器
type Consumer struct {
	group      sarama.ConsumerGroup
	log        *logger.Logger
	maxRetries int

	mu       sync.RWMutex
	handlers map[string]mq.MessageHandler
	topics   []string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConsumer 创建 Kafka 消费者
func NewConsumer(cfg *mq.Config, log *logger.Logger) (mq.Consumer, error) {
	if cfg.Kafka == nil {
		return nil, fmt.Errorf("kafka config is required")
	}
	sc, err := buildSaramaConfig(cfg.Kafka)
	if err != nil {
		return nil, fmt.Errorf("failed to build sarama config: %w", err)
	}
	group, err := sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.Kafka.Consumer.GroupID, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer group: %w", err)
	}

	maxRetries := cfg.Kafka.Consumer.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	log.Info("Kafka consumer created",
		zap.String("group", cfg.Kafka.Consumer.GroupID),
		zap.Strings("brokers", cfg.Kafka.Brokers),
	)
	return &Consumer{
		group:      group,
		log:        log,
		maxRetries: maxRetries,
		handlers:   make(map[string]mq.MessageHandler),
	}, nil
}

// Subscribe 订阅主题
func (c *Consumer) Subscribe(topic string, handler mq.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.handlers[topic]; !exists {
		c.topics = append(c.topics, topic)
	}
	c.handlers[topic] = handler
	return nil
}

// Start 启动消费循环，阻塞到首次分区分配完成或 ctx 取消
func (c *Consumer) Start() error {
	c.mu.RLock()
	topics := append([]string(nil), c.topics...)
	c.mu.RUnlock()
	if len(topics) == 0 {
		return fmt.Errorf("no topics subscribed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	ready := make(chan struct{})
	var once sync.Once

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		for {
			h := &groupHandler{consumer: c, onSetup: func() { once.Do(func() { close(ready) }) }}
			if err := c.group.Consume(ctx, topics, h); err != nil && ctx.Err() == nil {
				c.log.Error("consumer error", zap.Error(err))
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
	go func() {
		defer c.wg.Done()
		for {
			select {
			case err, ok := <-c.group.Errors():
				if !ok {
					return
				}
				c.log.Warn("consumer group error", zap.Error(err))
			case <-ctx.Done():
				return
			}
		}
	}()

	select {
	case <-ready:
	case <-time.After(30 * time.Second):
		c.log.Warn("Kafka consumer not assigned yet, continuing in background", zap.Strings("topics", topics))
		return nil
	}
	c.log.Info("Kafka consumer started", zap.Strings("topics", topics))
	return nil
}

// Close 关闭消费者
func (c *Consumer) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	err := c.group.Close()
	c.wg.Wait()
	if err != nil {
		c.log.Error("failed to close consumer", zap.Error(err))
		return err
	}
	c.log.Info("Kafka consumer closed")
	return nil
}

func (c *Consumer) handler(topic string) (mq.MessageHandler, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.handlers[topic]
	return h, ok
}

// handle 调用业务处理器，返回是否成功
func (c *Consumer) handle(ctx context.Context, handler mq.MessageHandler, msg *mq.ConsumedMessage) bool {
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		msg.ReconsumeCnt = int32(attempt)
		result, err := handler(ctx, []*mq.ConsumedMessage{msg})
		if err == nil && result == mq.ConsumeSuccess {
			return true
		}
		c.log.Warn("message handling failed, retrying",
			zap.String("topic", msg.Topic),
			zap.String("msg_id", msg.MsgID),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", c.maxRetries),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(retryBaseDelay * time.Duration(attempt+1)):
		}
	}
	return false
}

type groupHandler struct {
	consumer *Consumer
	onSetup  func()
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.onSetup()
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	handler, ok := h.consumer.handler(claim.Topic())
	if !ok {
		h.consumer.log.Warn("no handler for topic", zap.String("topic", claim.Topic()))
		return nil
	}
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			converted := fromConsumerMessage(msg)
			if !h.consumer.handle(session.Context(), handler, converted) {
				h.consumer.log.Error("message handling failed after all retries",
					zap.String("topic", msg.Topic),
					zap.Int32("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
				)
				// 不提交 offset，处理器需幂等
				continue
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
