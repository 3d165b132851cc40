package mq

import (
	"context"
	"time"
)

/* ========================================================================
 * MQ 抽象接口 - 工作区事件总线
 * ========================================================================
 * 职责: 统一 Kafka / RocketMQ / 进程内实现的收发接口
 * 使用: 成员变更、工作区切换、安全违规事件
 * ======================================================================== */

// Producer 消息生产者接口
type Producer interface {
	SendSync(ctx context.Context, msg *Message) (*SendResult, error)
	Close() error
}

// Consumer 消息消费者接口
type Consumer interface {
	// Subscribe 必须在 Start 之前调用
	Subscribe(topic string, handler MessageHandler) error
	Start() error
	Close() error
}

// Message 待发送的消息
type Message struct {
	Topic      string
	Body       []byte
	Key        string // 分区/顺序键，事件使用工作区 ID
	Tag        string // RocketMQ tag，Kafka 中作为 X-Tag header
	Properties map[string]string
}

// NewMessage 创建消息
func NewMessage(topic string, body []byte) *Message {
	return &Message{
		Topic:      topic,
		Body:       body,
		Properties: make(map[string]string),
	}
}

// WithKey 设置消息键
func (m *Message) WithKey(key string) *Message {
	m.Key = key
	return m
}

// WithTag 设置标签
func (m *Message) WithTag(tag string) *Message {
	m.Tag = tag
	return m
}

// WithProperty 设置属性
func (m *Message) WithProperty(key, value string) *Message {
	if m.Properties == nil {
		m.Properties = make(map[string]string)
	}
	m.Properties[key] = value
	return m
}

// ConsumedMessage 已消费的消息
type ConsumedMessage struct {
	Topic        string
	Body         []byte
	Key          string
	Tag          string
	Properties   map[string]string
	MsgID        string
	Offset       int64 // Kafka
	Partition    int32 // Kafka
	BornTime     time.Time
	ReconsumeCnt int32
}

// SendResult 发送结果
type SendResult struct {
	MsgID     string
	Topic     string
	Partition int32
	Offset    int64
}

// ConsumeResult 消费结果
type ConsumeResult int

const (
	ConsumeSuccess    ConsumeResult = iota // 消费成功
	ConsumeRetryLater                      // 稍后重试
)

// MessageHandler 消息处理函数
type MessageHandler func(ctx context.Context, msgs []*ConsumedMessage) (ConsumeResult, error)

// Type MQ 类型
type Type string

const (
	TypeRocketMQ Type = "rocketmq"
	TypeKafka    Type = "kafka"
	TypeMemory   Type = "memory"
)
