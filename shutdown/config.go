package shutdown

import "time"

// Config 优雅关停配置
type Config struct {
	// Timeout 整体关停超时，超时后跳过剩余钩子
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// HookTimeout 单个钩子的超时，0 表示只受 Timeout 约束
	HookTimeout time.Duration `yaml:"hook_timeout" mapstructure:"hook_timeout"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Timeout:     30 * time.Second,
		HookTimeout: 10 * time.Second,
	}
}
