package events

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aisgo/ais-workspace/logger"
	"github.com/aisgo/ais-workspace/mq"
)

// Publisher 事件发布接口
type Publisher interface {
	Publish(ctx context.Context, e *Event) error
}

// NopPublisher 丢弃所有事件
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *Event) error { return nil }

// MQPublisher 将事件写入消息队列
type MQPublisher struct {
	producer mq.Producer
	topic    string
}

// NewMQPublisher 创建 MQ 发布器
func NewMQPublisher(producer mq.Producer, topic string) *MQPublisher {
	return &MQPublisher{producer: producer, topic: topic}
}

func (p *MQPublisher) Publish(ctx context.Context, e *Event) error {
	body, err := e.Encode()
	if err != nil {
		return err
	}
	msg := mq.NewMessage(p.topic, body).
		WithKey(e.WorkspaceID).
		WithTag(string(e.Type)).
		WithProperty("event_id", strconv.FormatInt(e.ID, 10))
	if _, err := p.producer.SendSync(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

/* ========================================================================
 * AsyncPublisher - 异步发布
 * ========================================================================
 * 职责: 请求路径不等待 broker；队列满时丢弃并告警，事件是尽力而为的通知
 * ======================================================================== */

// AsyncPublisher 带缓冲的后台发布器
type AsyncPublisher struct {
	next    Publisher
	log     *logger.Logger
	queue   chan *Event
	timeout time.Duration

	once sync.Once
	done chan struct{}
	wg   sync.WaitGroup
}

// NewAsyncPublisher 创建并启动后台发布器
func NewAsyncPublisher(next Publisher, log *logger.Logger, buffer int) *AsyncPublisher {
	if buffer <= 0 {
		buffer = 1024
	}
	p := &AsyncPublisher{
		next:    next,
		log:     log,
		queue:   make(chan *Event, buffer),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Publish 入队，不阻塞调用方
func (p *AsyncPublisher) Publish(_ context.Context, e *Event) error {
	select {
	case <-p.done:
		return fmt.Errorf("publisher is closed")
	default:
	}
	select {
	case p.queue <- e:
		return nil
	default:
		p.log.Warn("event queue full, dropping event",
			zap.String("type", string(e.Type)),
			zap.String("workspace_id", e.WorkspaceID),
		)
		return nil
	}
}

func (p *AsyncPublisher) run() {
	defer p.wg.Done()
	for {
		select {
		case e := <-p.queue:
			p.send(e)
		case <-p.done:
			// 关闭前清空队列
			for {
				select {
				case e := <-p.queue:
					p.send(e)
				default:
					return
				}
			}
		}
	}
}

func (p *AsyncPublisher) send(e *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.next.Publish(ctx, e); err != nil {
		p.log.Error("failed to publish event",
			zap.String("type", string(e.Type)),
			zap.Int64("event_id", e.ID),
			zap.Error(err),
		)
	}
}

// Close 停止后台协程，等待已入队事件发送完成
func (p *AsyncPublisher) Close() error {
	p.once.Do(func() { close(p.done) })
	p.wg.Wait()
	return nil
}
