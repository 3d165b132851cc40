package mq

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aisgo/ais-workspace/logger"

	"go.uber.org/zap"
)

// ProducerFactory 生产者工厂函数类型
type ProducerFactory func(cfg *Config, log *logger.Logger) (Producer, error)

// ConsumerFactory 消费者工厂函数类型
type ConsumerFactory func(cfg *Config, log *logger.Logger) (Consumer, error)

// 适配器在 init 中注册自身
var (
	factoryMu         sync.RWMutex
	producerFactories = make(map[Type]ProducerFactory)
	consumerFactories = make(map[Type]ConsumerFactory)
)

// RegisterProducerFactory 注册生产者工厂
func RegisterProducerFactory(t Type, f ProducerFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	producerFactories[t] = f
}

// RegisterConsumerFactory 注册消费者工厂
func RegisterConsumerFactory(t Type, f ConsumerFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	consumerFactories[t] = f
}

// NewProducer 按配置类型创建生产者
func NewProducer(cfg *Config, log *logger.Logger) (Producer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mq config is required")
	}
	factoryMu.RLock()
	f, ok := producerFactories[cfg.Type]
	factoryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported MQ type %q, available: %v", cfg.Type, AvailableTypes())
	}
	log.Info("creating MQ producer", zap.String("type", string(cfg.Type)))
	return f(cfg, log)
}

// NewConsumer 按配置类型创建消费者
func NewConsumer(cfg *Config, log *logger.Logger) (Consumer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mq config is required")
	}
	factoryMu.RLock()
	f, ok := consumerFactories[cfg.Type]
	factoryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported MQ type %q, available: %v", cfg.Type, AvailableTypes())
	}
	log.Info("creating MQ consumer", zap.String("type", string(cfg.Type)))
	return f(cfg, log)
}

// AvailableTypes 返回已注册的类型
func AvailableTypes() []Type {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	types := make([]Type, 0, len(producerFactories))
	for t := range producerFactories {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
