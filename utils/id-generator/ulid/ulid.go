package ulid

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

/* ========================================================================
 * ULID Generator - 记录 ID 生成器
 * ========================================================================
 * 职责: 为工作区与租户记录生成 26 字符、按时间排序的 ID
 * 特点: 同一毫秒内单调递增，客户端可在首次写入前预先生成
 * ======================================================================== */

// Generator ULID 生成器
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

// NewGenerator 创建生成器，entropy 为 nil 时使用 crypto/rand
// Monotonic 熵源不是并发安全的，访问由 mu 串行化
func NewGenerator(entropy io.Reader) *Generator {
	if entropy == nil {
		entropy = rand.Reader
	}
	if _, ok := entropy.(ulid.MonotonicEntropy); !ok {
		entropy = ulid.Monotonic(entropy, 0)
	}
	return &Generator{entropy: entropy}
}

// Generate 按当前时间生成 ULID
func (g *Generator) Generate() ulid.ULID {
	return g.GenerateWithTime(time.Now())
}

// GenerateWithTime 使用指定时间生成 ULID
func (g *Generator) GenerateWithTime(t time.Time) ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), g.entropy)
}

// GenerateString 生成字符串格式 ULID
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

func global() *Generator {
	once.Do(func() { defaultGenerator = NewGenerator(nil) })
	return defaultGenerator
}

// Generate 使用全局生成器生成 ULID
func Generate() ulid.ULID {
	return global().Generate()
}

// GenerateString 使用全局生成器生成字符串 ULID
func GenerateString() string {
	return global().GenerateString()
}

// Parse 解析 ULID 字符串
func Parse(s string) (ulid.ULID, error) {
	return ulid.ParseStrict(s)
}

// IsValid reports whether s is a well-formed ULID string.
func IsValid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// Time 提取 ULID 中的时间戳
func Time(id ulid.ULID) time.Time {
	return ulid.Time(id.Time())
}
