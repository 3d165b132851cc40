package snowflake

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
)

/* ========================================================================
 * Snowflake ID Generator - 事件 ID 生成器
 * ========================================================================
 * 职责: 为审计与领域事件生成趋势递增的 64 位 ID
 * 配置: SNOWFLAKE_NODE_ID (0-1023)，多实例部署时必须互不相同
 * ======================================================================== */

const (
	MaxNodeID     = 1023
	DefaultNodeID = 0
	EnvNodeID     = "SNOWFLAKE_NODE_ID"
)

// Generator ID 生成器
type Generator struct {
	node *snowflake.Node
}

// NewGenerator 创建指定节点的生成器
func NewGenerator(nodeID int64) (*Generator, error) {
	if nodeID < 0 || nodeID > MaxNodeID {
		return nil, fmt.Errorf("snowflake node id %d out of range [0, %d]", nodeID, MaxNodeID)
	}
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, err
	}
	return &Generator{node: node}, nil
}

// Generate 生成雪花 ID
func (g *Generator) Generate() int64 {
	return g.node.Generate().Int64()
}

// GenerateString 生成字符串格式雪花 ID
func (g *Generator) GenerateString() string {
	return g.node.Generate().String()
}

var (
	globalGen *Generator
	once      sync.Once
)

// Generate 使用全局生成器（节点 ID 取自环境变量）
func Generate() int64 {
	once.Do(func() {
		gen, err := NewGenerator(getEnvNodeID())
		if err != nil {
			panic(err)
		}
		globalGen = gen
	})
	return globalGen.Generate()
}

// Parse 返回 ID 中的毫秒时间戳与节点 ID
func Parse(id int64) (timestamp int64, nodeID int64) {
	sid := snowflake.ID(id)
	return sid.Time(), sid.Node()
}

// getEnvNodeID 读取节点 ID，非法值回落到默认值
func getEnvNodeID() int64 {
	val := os.Getenv(EnvNodeID)
	if val == "" {
		return DefaultNodeID
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil || id < 0 || id > MaxNodeID {
		return DefaultNodeID
	}
	return id
}
