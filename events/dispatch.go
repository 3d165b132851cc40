package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/aisgo/ais-workspace/logger"
	"github.com/aisgo/ais-workspace/mq"
)

// Handler 处理单个事件
type Handler func(ctx context.Context, e *Event) error

// Dispatch 按事件类型路由消费到的消息。无法解码的消息直接确认，避免无限重投；
// 处理器失败时返回 RetryLater
func Dispatch(log *logger.Logger, handlers map[Type]Handler) mq.MessageHandler {
	return func(ctx context.Context, msgs []*mq.ConsumedMessage) (mq.ConsumeResult, error) {
		for _, msg := range msgs {
			e, err := Decode(msg.Body)
			if err != nil {
				log.Warn("discarding undecodable event", zap.String("msg_id", msg.MsgID), zap.Error(err))
				continue
			}
			h, ok := handlers[e.Type]
			if !ok {
				continue
			}
			if err := h(ctx, e); err != nil {
				return mq.ConsumeRetryLater, err
			}
		}
		return mq.ConsumeSuccess, nil
	}
}
