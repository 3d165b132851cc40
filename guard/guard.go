// Package guard 在合并多条记录的操作（批量导出、复制、打包、关联）执行前
// 做最后一次租户校验，与上游过滤是否正确无关。
package guard

import (
	"context"
	"slices"

	"github.com/aisgo/ais-workspace/audit"
	bizerrors "github.com/aisgo/ais-workspace/errors"
	"github.com/aisgo/ais-workspace/model"
	"github.com/aisgo/ais-workspace/workspace"
)

// AssertSingleTenant 所有非空 tenant_id 必须相同且等于 activeTenantID
// nil 记录与历史记录（tenant_id 为空）不参与判断。纯函数，无副作用。
func AssertSingleTenant[S model.Scoped](activeTenantID string, records ...S) error {
	tenants := TenantsOf(records...)
	switch {
	case len(tenants) == 0:
		return nil
	case len(tenants) > 1, tenants[0] != activeTenantID:
		return bizerrors.ErrMixedTenantOperationRejected
	}
	return nil
}

// TenantsOf 返回记录中出现的不同 tenant_id，按首次出现顺序
func TenantsOf[S model.Scoped](records ...S) []string {
	var out []string
	for _, r := range records {
		if model.IsNil(r) {
			continue
		}
		tid := model.TenantOf(r)
		if tid == "" || slices.Contains(out, tid) {
			continue
		}
		out = append(out, tid)
	}
	return out
}

// AssertLinkable 关联两条记录（如任务挂到项目）前校验二者同属活动租户
func AssertLinkable(activeTenantID string, a, b model.Scoped) error {
	return AssertSingleTenant(activeTenantID, a, b)
}

// TenantSource 提供活动租户快照，*workspace.Context 实现了它
type TenantSource interface {
	Snapshot() (workspace.Snapshot, error)
}

// Validator 从活动工作区取租户并记录违规
type Validator struct {
	source   TenantSource
	recorder audit.Recorder
}

func NewValidator(source TenantSource, recorder audit.Recorder) *Validator {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Validator{source: source, recorder: recorder}
}

// Check 校验 records 属于当前活动租户；operation 与 entity 只用于审计
func Check[S model.Scoped](ctx context.Context, v *Validator, entity, operation string, records ...S) error {
	snap, err := v.source.Snapshot()
	if err != nil {
		return err
	}
	if err := AssertSingleTenant(snap.TenantID, records...); err != nil {
		target := ""
		for _, tid := range TenantsOf(records...) {
			if tid != snap.TenantID {
				target = tid
				break
			}
		}
		v.recorder.Record(ctx, audit.Violation{
			Kind:           audit.KindMixedTenantOperation,
			PrincipalID:    snap.PrincipalID,
			ActiveTenantID: snap.TenantID,
			TargetTenantID: target,
			Entity:         entity,
			Operation:      operation,
		})
		return err
	}
	return nil
}
