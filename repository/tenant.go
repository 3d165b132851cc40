package repository

import (
	"context"
	"fmt"
)

// LegacyMode 控制 tenant_id 为空的历史记录
// 历史记录来自工作区隔离上线之前，迁移期间对所有工作区可见
type LegacyMode string

const (
	LegacyShared   LegacyMode = "shared"    // 所有工作区可见、可写
	LegacyReadOnly LegacyMode = "read_only" // 可见，不可修改或删除
	LegacyHidden   LegacyMode = "hidden"    // 不可见
)

// ParseLegacyMode 解析配置值，空值为 shared
func ParseLegacyMode(s string) (LegacyMode, error) {
	switch LegacyMode(s) {
	case "", LegacyShared:
		return LegacyShared, nil
	case LegacyReadOnly, LegacyHidden:
		return LegacyMode(s), nil
	}
	return "", fmt.Errorf("unknown legacy mode %q", s)
}

// Visible 历史记录是否出现在读结果中
func (m LegacyMode) Visible() bool {
	return m != LegacyHidden
}

// Writable 历史记录是否允许修改与删除
func (m LegacyMode) Writable() bool {
	return m == "" || m == LegacyShared
}

// TenantContext 后端执行租户约束所需的声明
// 由 ScopedRepository 从一次性快照生成，后端不读取 WorkspaceContext
type TenantContext struct {
	TenantID    string
	PrincipalID string
	Generation  uint64
	Legacy      LegacyMode
}

type tenantCtxKey struct{}

// WithTenantContext injects TenantContext into context.Context.
func WithTenantContext(ctx context.Context, tc TenantContext) context.Context {
	return context.WithValue(ctx, tenantCtxKey{}, tc)
}

// TenantFromContext reads TenantContext from context.Context.
func TenantFromContext(ctx context.Context) (TenantContext, bool) {
	tc, ok := ctx.Value(tenantCtxKey{}).(TenantContext)
	if !ok || tc.TenantID == "" {
		return TenantContext{}, false
	}
	return tc, true
}
