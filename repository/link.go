package repository

import (
	"context"
	"reflect"
	"strings"

	"github.com/aisgo/ais-workspace/audit"
	bizerrors "github.com/aisgo/ais-workspace/errors"
	"github.com/aisgo/ais-workspace/guard"
	"github.com/aisgo/ais-workspace/model"
)

/* ========================================================================
 * Link - 实体间引用
 * ========================================================================
 * 职责: 写入引用列（如 task.project_id）前确认目标记录属于同一活动租户
 * 约束:
 *   - 目标通过目标实体的 ScopedRepository.Get 查找，其他租户的记录不可见
 *   - 目标不存在与属于其他租户同样以 ErrMixedTenantOperationRejected 拒绝
 *   - 引用置空（nil 或空串）表示解除关联，不做校验
 *
 * 使用示例:
 *   projectLink := repository.LinkTo[model.Project]("project_id", "ProjectID", projects, opts.WithEntity("projects"))
 *   tasks := repository.NewScoped[model.Task](backend, wc, opts.WithLinks(projectLink))
 * ======================================================================== */

// Link 引用列及其目标实体
type Link struct {
	Column  string // 数据库列名
	Field   string // 结构体字段名
	Entity  string // 目标实体名
	resolve func(ctx context.Context, source TenantSource, id string) (model.Scoped, error)
}

// LinkTo 声明 column（结构体字段 field）引用 backend 中类型为 T 的记录
func LinkTo[T any, P Record[T]](column, field string, backend Backend[T], opts Options) Link {
	target := opts.WithLinks()
	if target.Entity == "" {
		target.Entity = strings.ToLower(reflect.TypeFor[T]().Name())
	}
	return Link{
		Column: column,
		Field:  field,
		Entity: target.Entity,
		resolve: func(ctx context.Context, source TenantSource, id string) (model.Scoped, error) {
			rec, err := NewScoped[T, P](backend, source, target).Get(ctx, id)
			if err != nil {
				return nil, err
			}
			return P(rec), nil
		},
	}
}

// WithLinks 返回设置了引用列的副本
func (o Options) WithLinks(links ...Link) Options {
	o.Links = links
	return o
}

// recordRefs 读取 rec 中非空的引用值，key 为列名
func recordRefs(rec any, links []Link) map[string]string {
	if len(links) == 0 {
		return nil
	}
	rv := reflect.Indirect(reflect.ValueOf(rec))
	refs := make(map[string]string, len(links))
	for _, l := range links {
		f := rv.FieldByName(l.Field)
		if !f.IsValid() {
			continue
		}
		if f.Kind() == reflect.Pointer {
			if f.IsNil() {
				continue
			}
			f = f.Elem()
		}
		if f.Kind() == reflect.String && f.String() != "" {
			refs[l.Column] = f.String()
		}
	}
	return refs
}

// updateRefs 读取 fields 中对引用列的赋值；非字符串的引用值返回错误
func updateRefs(fields map[string]any, links []Link) (map[string]string, error) {
	if len(links) == 0 {
		return nil, nil
	}
	refs := make(map[string]string, len(links))
	for _, l := range links {
		for _, key := range []string{l.Column, l.Field} {
			v, ok := fields[key]
			if !ok || v == nil {
				continue
			}
			switch t := v.(type) {
			case string:
				if t != "" {
					refs[l.Column] = t
				}
			case *string:
				if t != nil && *t != "" {
					refs[l.Column] = *t
				}
			default:
				return nil, invalid("fields", key, "reference must be an id string")
			}
		}
	}
	return refs, nil
}

// checkLinks 确认 owner 的每个引用都指向活动租户中存在的记录
func (r *ScopedRepository[T, P]) checkLinks(ctx context.Context, c *call, owner *T, refs map[string]string) error {
	for _, l := range r.links {
		ref, ok := refs[l.Column]
		if !ok {
			continue
		}
		target, err := l.resolve(ctx, r.source, ref)
		if bizerrors.IsNotFound(err) {
			target, err = nil, bizerrors.ErrMixedTenantOperationRejected
		}
		if err == nil {
			err = guard.AssertLinkable(c.snap.TenantID, P(owner), target)
		}
		if err == nil {
			continue
		}
		if bizerrors.Is(err, bizerrors.ErrMixedTenantOperationRejected) {
			targetTenant := ""
			if !model.IsNil(target) {
				targetTenant = model.TenantOf(target)
			}
			r.recorder.Record(ctx, audit.Violation{
				Kind:           audit.KindMixedTenantOperation,
				PrincipalID:    c.snap.PrincipalID,
				ActiveTenantID: c.snap.TenantID,
				TargetTenantID: targetTenant,
				Entity:         r.entity,
				EntityID:       P(owner).GetID(),
				Operation:      c.name,
				Detail:         l.Column + " -> " + l.Entity + ":" + ref,
			})
		}
		return err
	}
	return nil
}
