package repository

import (
	"context"
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	bizerrors "github.com/aisgo/ais-workspace/errors"
)

const tenantColumn = "tenant_id"

// tenantScope 将 ctx 中的活动租户注入查询
// write 为 true 时按 LegacyMode.Writable 决定是否包含历史记录
func tenantScope(ctx context.Context, write bool) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		tc, ok := TenantFromContext(ctx)
		if !ok {
			db.AddError(bizerrors.ErrUnauthenticated)
			return db
		}

		includeLegacy := tc.Legacy.Visible()
		if write {
			includeLegacy = tc.Legacy.Writable()
		}
		if includeLegacy {
			return db.Where("("+tenantColumn+" = ? OR "+tenantColumn+" IS NULL)", tc.TenantID)
		}
		return db.Where(tenantColumn+" = ?", tc.TenantID)
	}
}

func (b *GormBackend[T]) tenantField() (*schema.Field, error) {
	s, err := b.getSchema()
	if err != nil {
		return nil, err
	}
	field, ok := s.FieldsByDBName[tenantColumn]
	if !ok {
		return nil, bizerrors.New(bizerrors.ErrCodeInternal, s.Name+" has no tenant_id column")
	}
	return field, nil
}

// stampTenant 为新记录写入活动租户；已有不同租户时拒绝
func (b *GormBackend[T]) stampTenant(ctx context.Context, record *T) error {
	tc, ok := TenantFromContext(ctx)
	if !ok {
		return bizerrors.ErrUnauthenticated
	}
	field, err := b.tenantField()
	if err != nil {
		return err
	}

	rv := reflect.ValueOf(record)
	current, isZero := field.ValueOf(ctx, rv)
	if !isZero {
		if tid := tenantString(current); tid != "" && tid != tc.TenantID {
			return bizerrors.ErrCrossTenantWriteRejected
		}
	}
	tenantID := tc.TenantID
	return field.Set(ctx, rv, &tenantID)
}

func tenantString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case *string:
		if t != nil {
			return *t
		}
	}
	return ""
}
