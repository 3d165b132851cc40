package mq

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aisgo/ais-workspace/logger"

	"go.uber.org/zap"
)

/* ========================================================================
 * Memory Bus - 进程内消息总线
 * ========================================================================
 * 职责: 单实例部署与测试使用，语义与 Kafka 消费组一致：
 *       每个 Consumer 按发送顺序收到订阅主题的消息，失败时有限次重试
 * ======================================================================== */

const (
	memoryQueueSize  = 256
	memoryMaxRetries = 3
	memoryRetryDelay = 20 * time.Millisecond
)

func init() {
	RegisterProducerFactory(TypeMemory, func(_ *Config, _ *logger.Logger) (Producer, error) {
		return defaultBus.Producer(), nil
	})
	RegisterConsumerFactory(TypeMemory, func(_ *Config, log *logger.Logger) (Consumer, error) {
		return defaultBus.Consumer(log), nil
	})
}

var defaultBus = NewBus()

// Bus 进程内总线
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]*MemoryConsumer
	seq  atomic.Int64
}

// NewBus 创建独立总线
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]*MemoryConsumer)}
}

// Producer 返回向该总线发送消息的生产者
func (b *Bus) Producer() Producer {
	return &memoryProducer{bus: b}
}

// Consumer 返回该总线上的新消费者
func (b *Bus) Consumer(log *logger.Logger) *MemoryConsumer {
	return &MemoryConsumer{
		bus:      b,
		log:      log,
		handlers: make(map[string]MessageHandler),
		queue:    make(chan *ConsumedMessage, memoryQueueSize),
		done:     make(chan struct{}),
	}
}

func (b *Bus) publish(ctx context.Context, msg *Message) (*SendResult, error) {
	id := b.seq.Add(1)
	consumed := &ConsumedMessage{
		Topic:      msg.Topic,
		Body:       append([]byte(nil), msg.Body...),
		Key:        msg.Key,
		Tag:        msg.Tag,
		Properties: make(map[string]string, len(msg.Properties)),
		MsgID:      strconv.FormatInt(id, 10),
		Offset:     id,
		BornTime:   time.Now(),
	}
	for k, v := range msg.Properties {
		consumed.Properties[k] = v
	}

	b.mu.RLock()
	subs := append([]*MemoryConsumer(nil), b.subs[msg.Topic]...)
	b.mu.RUnlock()

	for _, c := range subs {
		if err := c.enqueue(ctx, consumed); err != nil {
			return nil, err
		}
	}
	return &SendResult{MsgID: consumed.MsgID, Topic: msg.Topic, Offset: id}, nil
}

func (b *Bus) remove(c *MemoryConsumer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for topic, subs := range b.subs {
		kept := subs[:0]
		for _, s := range subs {
			if s != c {
				kept = append(kept, s)
			}
		}
		b.subs[topic] = kept
	}
}

type memoryProducer struct {
	bus    *Bus
	closed atomic.Bool
}

func (p *memoryProducer) SendSync(ctx context.Context, msg *Message) (*SendResult, error) {
	if p.closed.Load() {
		return nil, fmt.Errorf("producer is closed")
	}
	return p.bus.publish(ctx, msg)
}

func (p *memoryProducer) Close() error {
	p.closed.Store(true)
	return nil
}

// MemoryConsumer 进程内消费者
type MemoryConsumer struct {
	bus      *Bus
	log      *logger.Logger
	mu       sync.RWMutex
	handlers map[string]MessageHandler
	queue    chan *ConsumedMessage
	done     chan struct{}
	wg       sync.WaitGroup
	started  atomic.Bool
	closed   atomic.Bool
}

func (c *MemoryConsumer) Subscribe(topic string, handler MessageHandler) error {
	if c.started.Load() {
		return fmt.Errorf("subscribe %s after start", topic)
	}
	c.mu.Lock()
	c.handlers[topic] = handler
	c.mu.Unlock()

	c.bus.mu.Lock()
	c.bus.subs[topic] = append(c.bus.subs[topic], c)
	c.bus.mu.Unlock()
	return nil
}

func (c *MemoryConsumer) Start() error {
	if !c.started.CompareAndSwap(false, true) {
		return nil
	}
	c.wg.Add(1)
	go c.loop()
	return nil
}

func (c *MemoryConsumer) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.bus.remove(c)
	close(c.done)
	c.wg.Wait()
	return nil
}

func (c *MemoryConsumer) enqueue(ctx context.Context, msg *ConsumedMessage) error {
	select {
	case c.queue <- msg:
		return nil
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *MemoryConsumer) loop() {
	defer c.wg.Done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-c.done
		cancel()
	}()

	for {
		select {
		case msg := <-c.queue:
			c.dispatch(ctx, msg)
		case <-c.done:
			return
		}
	}
}

func (c *MemoryConsumer) dispatch(ctx context.Context, msg *ConsumedMessage) {
	c.mu.RLock()
	handler, ok := c.handlers[msg.Topic]
	c.mu.RUnlock()
	if !ok {
		return
	}

	for attempt := 0; attempt < memoryMaxRetries; attempt++ {
		msg.ReconsumeCnt = int32(attempt)
		result, err := handler(ctx, []*ConsumedMessage{msg})
		if err == nil && result == ConsumeSuccess {
			return
		}
		c.log.Warn("memory consumer handler failed",
			zap.String("topic", msg.Topic),
			zap.String("msg_id", msg.MsgID),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		select {
		case <-time.After(memoryRetryDelay * time.Duration(attempt+1)):
		case <-ctx.Done():
			return
		}
	}
	c.log.Error("memory consumer dropped message after retries",
		zap.String("topic", msg.Topic),
		zap.String("msg_id", msg.MsgID),
	)
}
