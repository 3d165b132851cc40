package mq

import "time"

// Config MQ 统一配置
type Config struct {
	Type     Type            `yaml:"type" mapstructure:"type"` // kafka / rocketmq / memory
	Topic    string          `yaml:"topic" mapstructure:"topic"`
	RocketMQ *RocketMQConfig `yaml:"rocketmq" mapstructure:"rocketmq"`
	Kafka    *KafkaConfig    `yaml:"kafka" mapstructure:"kafka"`
}

// DefaultConfig 默认使用进程内总线，单实例部署无需外部依赖
func DefaultConfig() *Config {
	return &Config{
		Type:     TypeMemory,
		Topic:    "workspace-events",
		RocketMQ: DefaultRocketMQConfig(),
		Kafka:    DefaultKafkaConfig(),
	}
}

// RocketMQConfig RocketMQ 配置
type RocketMQConfig struct {
	NameServers   []string      `yaml:"name_servers" mapstructure:"name_servers"`
	Namespace     string        `yaml:"namespace" mapstructure:"namespace"`
	AccessKey     string        `yaml:"access_key" mapstructure:"access_key"`
	SecretKey     string        `yaml:"secret_key" mapstructure:"secret_key"`
	ProducerGroup string        `yaml:"producer_group" mapstructure:"producer_group"`
	ConsumerGroup string        `yaml:"consumer_group" mapstructure:"consumer_group"`
	SendTimeout   time.Duration `yaml:"send_timeout" mapstructure:"send_timeout"`
	Retries       int           `yaml:"retries" mapstructure:"retries"`
	// Broadcasting 让每个实例都收到成员变更事件，各自刷新本地会话
	Broadcasting      bool  `yaml:"broadcasting" mapstructure:"broadcasting"`
	MaxReconsumeTimes int32 `yaml:"max_reconsume_times" mapstructure:"max_reconsume_times"`
}

// DefaultRocketMQConfig 返回 RocketMQ 默认配置
func DefaultRocketMQConfig() *RocketMQConfig {
	return &RocketMQConfig{
		NameServers:       []string{"127.0.0.1:9876"},
		ProducerGroup:     "workspace_producer",
		ConsumerGroup:     "workspace_consumer",
		SendTimeout:       3 * time.Second,
		Retries:           2,
		Broadcasting:      true,
		MaxReconsumeTimes: 16,
	}
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Brokers  []string            `yaml:"brokers" mapstructure:"brokers"`
	Version  string              `yaml:"version" mapstructure:"version"`
	SASL     KafkaSASLConfig     `yaml:"sasl" mapstructure:"sasl"`
	TLS      KafkaTLSConfig      `yaml:"tls" mapstructure:"tls"`
	Producer KafkaProducerConfig `yaml:"producer" mapstructure:"producer"`
	Consumer KafkaConsumerConfig `yaml:"consumer" mapstructure:"consumer"`
}

// KafkaSASLConfig Kafka SASL 认证配置
type KafkaSASLConfig struct {
	Enable    bool   `yaml:"enable" mapstructure:"enable"`
	Mechanism string `yaml:"mechanism" mapstructure:"mechanism"` // PLAIN / SCRAM-SHA-256 / SCRAM-SHA-512
	Username  string `yaml:"username" mapstructure:"username"`
	Password  string `yaml:"password" mapstructure:"password"`
}

// KafkaTLSConfig Kafka TLS 配置
type KafkaTLSConfig struct {
	Enable   bool   `yaml:"enable" mapstructure:"enable"`
	CertFile string `yaml:"cert_file" mapstructure:"cert_file"`
	KeyFile  string `yaml:"key_file" mapstructure:"key_file"`
	CAFile   string `yaml:"ca_file" mapstructure:"ca_file"`
	Insecure bool   `yaml:"insecure" mapstructure:"insecure"`
}

// KafkaProducerConfig Kafka 生产者配置
type KafkaProducerConfig struct {
	RequiredAcks string        `yaml:"required_acks" mapstructure:"required_acks"` // none / leader / all
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Idempotent   bool          `yaml:"idempotent" mapstructure:"idempotent"`
	RetryMax     int           `yaml:"retry_max" mapstructure:"retry_max"`
}

// KafkaConsumerConfig Kafka 消费者配置
type KafkaConsumerConfig struct {
	GroupID        string        `yaml:"group_id" mapstructure:"group_id"`
	InitialOffset  string        `yaml:"initial_offset" mapstructure:"initial_offset"` // newest / oldest
	SessionTimeout time.Duration `yaml:"session_timeout" mapstructure:"session_timeout"`
	MaxRetries     int           `yaml:"max_retries" mapstructure:"max_retries"`
}

// DefaultKafkaConfig 返回 Kafka 默认配置
func DefaultKafkaConfig() *KafkaConfig {
	return &KafkaConfig{
		Brokers: []string{"127.0.0.1:9092"},
		Version: "2.8.0",
		Producer: KafkaProducerConfig{
			RequiredAcks: "all",
			Timeout:      10 * time.Second,
			RetryMax:     3,
		},
		Consumer: KafkaConsumerConfig{
			GroupID:        "workspace_consumer",
			InitialOffset:  "newest",
			SessionTimeout: 10 * time.Second,
			MaxRetries:     3,
		},
	}
}
