package rocketmq

import (
	"context"
	"fmt"
	"time"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
	"go.uber.org/zap"

	"github.com/aisgo/ais-workspace/logger"
	"github.com/aisgo/ais-workspace/mq"
)

/* ========================================================================
 * RocketMQ Adapter
 * ========================================================================
 * 职责: 实现 mq.Producer / mq.Consumer
 * 说明: 默认广播消费，使每个实例都能收到成员变更并刷新本地会话
 * ======================================================================== */

func init() {
	mq.RegisterProducerFactory(mq.TypeRocketMQ, NewProducer)
	mq.RegisterConsumerFactory(mq.TypeRocketMQ, NewConsumer)
}

// Producer RocketMQ 生产者
type Producer struct {
	producer rocketmq.Producer
	log      *logger.Logger
}

// NewProducer 创建并启动 RocketMQ 生产者
func NewProducer(cfg *mq.Config, log *logger.Logger) (mq.Producer, error) {
	if cfg.RocketMQ == nil {
		return nil, fmt.Errorf("rocketmq config is required")
	}
	p, err := rocketmq.NewProducer(producerOptions(cfg.RocketMQ)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create rocketmq producer: %w", err)
	}
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf("failed to start rocketmq producer: %w", err)
	}
	log.Info("RocketMQ producer started",
		zap.String("group", cfg.RocketMQ.ProducerGroup),
		zap.Strings("name_servers", cfg.RocketMQ.NameServers),
	)
	return &Producer{producer: p, log: log}, nil
}

func producerOptions(cfg *mq.RocketMQConfig) []producer.Option {
	opts := []producer.Option{
		producer.WithNameServer(cfg.NameServers),
		producer.WithGroupName(cfg.ProducerGroup),
		producer.WithRetry(cfg.Retries),
	}
	if cfg.SendTimeout > 0 {
		opts = append(opts, producer.WithSendMsgTimeout(cfg.SendTimeout))
	}
	if cfg.Namespace != "" {
		opts = append(opts, producer.WithNamespace(cfg.Namespace))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, producer.WithCredentials(primitive.Credentials{
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		}))
	}
	return opts
}

// SendSync 同步发送
func (p *Producer) SendSync(ctx context.Context, msg *mq.Message) (*mq.SendResult, error) {
	result, err := p.producer.SendSync(ctx, toRocketMQMessage(msg))
	if err != nil {
		p.log.Error("failed to send message", zap.String("topic", msg.Topic), zap.Error(err))
		return nil, err
	}
	if result.Status != primitive.SendOK {
		return nil, fmt.Errorf("rocketmq send status %d for %s", result.Status, result.MsgID)
	}
	return &mq.SendResult{MsgID: result.MsgID, Topic: msg.Topic, Offset: result.QueueOffset}, nil
}

// Close 关闭生产者
func (p *Producer) Close() error {
	if err := p.producer.Shutdown(); err != nil {
		p.log.Error("failed to shutdown producer", zap.Error(err))
		return err
	}
	return nil
}

// Consumer RocketMQ Push 消费者
type Consumer struct {
	consumer rocketmq.PushConsumer
	log      *logger.Logger
}

// NewConsumer 创建 RocketMQ 消费者，Start 时开始拉取
func NewConsumer(cfg *mq.Config, log *logger.Logger) (mq.Consumer, error) {
	if cfg.RocketMQ == nil {
		return nil, fmt.Errorf("rocketmq config is required")
	}
	c, err := rocketmq.NewPushConsumer(consumerOptions(cfg.RocketMQ)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create rocketmq consumer: %w", err)
	}
	log.Info("RocketMQ consumer created",
		zap.String("group", cfg.RocketMQ.ConsumerGroup),
		zap.Bool("broadcasting", cfg.RocketMQ.Broadcasting),
	)
	return &Consumer{consumer: c, log: log}, nil
}

func consumerOptions(cfg *mq.RocketMQConfig) []consumer.Option {
	model := consumer.Clustering
	if cfg.Broadcasting {
		model = consumer.BroadCasting
	}
	opts := []consumer.Option{
		consumer.WithNameServer(cfg.NameServers),
		consumer.WithGroupName(cfg.ConsumerGroup),
		consumer.WithConsumerModel(model),
		consumer.WithConsumeFromWhere(consumer.ConsumeFromLastOffset),
	}
	if cfg.MaxReconsumeTimes > 0 {
		opts = append(opts, consumer.WithMaxReconsumeTimes(cfg.MaxReconsumeTimes))
	}
	if cfg.Namespace != "" {
		opts = append(opts, consumer.WithNamespace(cfg.Namespace))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, consumer.WithCredentials(primitive.Credentials{
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		}))
	}
	return opts
}

// Subscribe 订阅主题
func (c *Consumer) Subscribe(topic string, handler mq.MessageHandler) error {
	err := c.consumer.Subscribe(topic, consumer.MessageSelector{}, func(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
		converted := make([]*mq.ConsumedMessage, len(msgs))
		for i, m := range msgs {
			converted[i] = fromMessageExt(m)
		}
		result, err := handler(ctx, converted)
		if err != nil || result == mq.ConsumeRetryLater {
			c.log.Warn("message handling failed", zap.String("topic", topic), zap.Int("count", len(msgs)), zap.Error(err))
			return consumer.ConsumeRetryLater, err
		}
		return consumer.ConsumeSuccess, nil
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe topic %s: %w", topic, err)
	}
	return nil
}

// Start 启动消费者
func (c *Consumer) Start() error {
	if err := c.consumer.Start(); err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}
	return nil
}

// Close 关闭消费者
func (c *Consumer) Close() error {
	if err := c.consumer.Shutdown(); err != nil {
		c.log.Error("failed to shutdown consumer", zap.Error(err))
		return err
	}
	return nil
}

func toRocketMQMessage(msg *mq.Message) *primitive.Message {
	m := primitive.NewMessage(msg.Topic, msg.Body)
	if msg.Key != "" {
		m.WithKeys([]string{msg.Key})
		m.WithShardingKey(msg.Key)
	}
	if msg.Tag != "" {
		m.WithTag(msg.Tag)
	}
	for k, v := range msg.Properties {
		m.WithProperty(k, v)
	}
	return m
}

func fromMessageExt(msg *primitive.MessageExt) *mq.ConsumedMessage {
	return &mq.ConsumedMessage{
		Topic:        msg.Topic,
		Body:         msg.Body,
		Key:          msg.GetKeys(),
		Tag:          msg.GetTags(),
		Properties:   msg.GetProperties(),
		MsgID:        msg.MsgId,
		Offset:       msg.QueueOffset,
		BornTime:     time.UnixMilli(msg.BornTimestamp),
		ReconsumeCnt: msg.ReconsumeTimes,
	}
}
