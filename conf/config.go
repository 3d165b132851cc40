package conf

import (
	"bytes"
	"errors"
	"os"
	"regexp"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

/* ========================================================================
 * Config Loader - 配置加载器
 * ========================================================================
 * 职责: 统一配置加载，支持 YAML / JSON / 环境变量覆盖
 * 技术: Viper + mapstructure decode hooks
 * ======================================================================== */

// Loader 定义配置加载接口
type Loader interface {
	Load(config any) error
}

type viperLoader struct {
	configPath string
	configName string
	configType string
	envPrefix  string
	defaults   map[string]any
}

// Option customizes a Loader.
type Option func(*viperLoader)

// WithEnvPrefix 设置环境变量前缀，例如 WORKSPACE_DATABASE_HOST
func WithEnvPrefix(prefix string) Option {
	return func(l *viperLoader) { l.envPrefix = prefix }
}

// WithDefault registers a default applied when neither file nor env sets key.
func WithDefault(key string, value any) Option {
	return func(l *viperLoader) { l.defaults[key] = value }
}

var envPlaceholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// expandEnvPlaceholders 展开 ${VAR} / ${VAR:-default}，未设置或为空时使用 default
func expandEnvPlaceholders(raw string) string {
	return envPlaceholderPattern.ReplaceAllStringFunc(raw, func(match string) string {
		sub := envPlaceholderPattern.FindStringSubmatch(match)
		if val, ok := os.LookupEnv(sub[1]); ok && val != "" {
			return val
		}
		return sub[2]
	})
}

// NewLoader 创建配置加载器
// configPath: 配置文件目录; configName: 文件名 (不含扩展名); configType: yaml, json 等
func NewLoader(configPath, configName, configType string, opts ...Option) Loader {
	l := &viperLoader{
		configPath: configPath,
		configName: configName,
		configType: configType,
		envPrefix:  "WORKSPACE",
		defaults:   make(map[string]any),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *viperLoader) newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(l.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for k, val := range l.defaults {
		v.SetDefault(k, val)
	}
	return v
}

func (l *viperLoader) Load(config any) error {
	// 先定位配置文件，缺失时仅使用默认值与环境变量
	finder := viper.New()
	finder.AddConfigPath(l.configPath)
	finder.SetConfigName(l.configName)
	finder.SetConfigType(l.configType)
	if err := finder.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}

	v := l.newViper()
	if configFile := finder.ConfigFileUsed(); configFile != "" {
		raw, err := os.ReadFile(configFile)
		if err != nil {
			return err
		}
		v.SetConfigType(l.configType)
		if err := v.ReadConfig(bytes.NewBufferString(expandEnvPlaceholders(string(raw)))); err != nil {
			return err
		}
	}

	return v.Unmarshal(config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	)))
}
