package workspace

import (
	"context"

	"gorm.io/gorm"

	"github.com/aisgo/ais-workspace/cache/redis"
	"github.com/aisgo/ais-workspace/database"
	bizerrors "github.com/aisgo/ais-workspace/errors"
	"github.com/aisgo/ais-workspace/model"
)

// PreferenceStore 持久化主体上次选择的活动工作区
type PreferenceStore interface {
	// Load 返回 "" 表示没有偏好
	Load(ctx context.Context, principalID string) (string, error)
	Save(ctx context.Context, principalID, workspaceID string) error
}

// GormPreferences 写入 principals.active_workspace_id
type GormPreferences struct {
	db *gorm.DB
}

func NewGormPreferences(db *gorm.DB) *GormPreferences {
	return &GormPreferences{db: db}
}

func (p *GormPreferences) Load(ctx context.Context, principalID string) (string, error) {
	var principal model.Principal
	err := p.db.WithContext(ctx).Select("id", "active_workspace_id").Where("id = ?", principalID).First(&principal).Error
	if err != nil {
		err = database.ClassifyError(err)
		if bizerrors.IsNotFound(err) {
			return "", nil
		}
		return "", err
	}
	if principal.ActiveWorkspaceID == nil {
		return "", nil
	}
	return *principal.ActiveWorkspaceID, nil
}

func (p *GormPreferences) Save(ctx context.Context, principalID, workspaceID string) error {
	err := p.db.WithContext(ctx).Model(&model.Principal{}).
		Where("id = ?", principalID).
		Update("active_workspace_id", workspaceID).Error
	return database.ClassifyError(err)
}

const preferenceKey = "workspace:active"

// RedisPreferences 以 hash 保存，field 为主体 ID
type RedisPreferences struct {
	client redis.Clienter
}

func NewRedisPreferences(client redis.Clienter) *RedisPreferences {
	return &RedisPreferences{client: client}
}

func (p *RedisPreferences) Load(ctx context.Context, principalID string) (string, error) {
	v, err := p.client.HGet(ctx, preferenceKey, principalID)
	if err != nil {
		if redis.IsNil(err) {
			return "", nil
		}
		return "", bizerrors.Wrap(bizerrors.ErrCodeBackendUnavailable, "load workspace preference", err)
	}
	return v, nil
}

func (p *RedisPreferences) Save(ctx context.Context, principalID, workspaceID string) error {
	if err := p.client.HSet(ctx, preferenceKey, principalID, workspaceID); err != nil {
		return bizerrors.Wrap(bizerrors.ErrCodeBackendUnavailable, "save workspace preference", err)
	}
	return nil
}
