package workspace

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aisgo/ais-workspace/database"
	bizerrors "github.com/aisgo/ais-workspace/errors"
	"github.com/aisgo/ais-workspace/events"
	"github.com/aisgo/ais-workspace/logger"
	"github.com/aisgo/ais-workspace/model"
	"github.com/aisgo/ais-workspace/validator"
)

/* ========================================================================
 * Directory - 工作区与主体目录
 * ========================================================================
 * 职责: 工作区的创建 / 删除 / 成员管理，主体解析
 * 规则:
 *   - 每个主体恰有一个默认工作区，首次认证时自动创建，不可删除
 *   - 所有者是隐式成员，不可被移除
 *   - 只有所有者可以删除工作区或管理成员
 * ======================================================================== */

// Directory 工作区目录
type Directory interface {
	ListAccessible(ctx context.Context, principalID string) ([]model.Workspace, error)
	Get(ctx context.Context, id string) (*model.Workspace, error)
	EnsureDefault(ctx context.Context, principal *model.Principal) (*model.Workspace, error)
	Create(ctx context.Context, ownerID string, in CreateInput) (*model.Workspace, error)
	Delete(ctx context.Context, actorID, id string) error
	AddMember(ctx context.Context, actorID, workspaceID, principalID string) error
	RemoveMember(ctx context.Context, actorID, workspaceID, principalID string) error
	ResolvePrincipal(ctx context.Context, email, displayName string) (*model.Principal, error)
}

// 事件属性
const (
	AttrAction  = "action"
	AttrMembers = "members"
)

// CreateInput 创建工作区参数
type CreateInput struct {
	Name string              `json:"name" validate:"required,max=128" error_msg:"required:name is required|max:name must be at most 128 characters"`
	Type model.WorkspaceType `json:"type" validate:"omitempty,workspace_type" error_msg:"workspace_type:type must be personal, team or client"`
}

// GormDirectory 基于 gorm 的目录实现
type GormDirectory struct {
	db        *gorm.DB
	publisher events.Publisher
	validate  *validator.Validator
	log       *logger.Logger
}

// NewGormDirectory 创建目录；publisher 为 nil 时不发布事件
func NewGormDirectory(db *gorm.DB, publisher events.Publisher, log *logger.Logger) *GormDirectory {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &GormDirectory{db: db, publisher: publisher, validate: validator.New(), log: log}
}

func (d *GormDirectory) ListAccessible(ctx context.Context, principalID string) ([]model.Workspace, error) {
	db := d.db.WithContext(ctx)
	memberOf := db.Model(&model.Membership{}).Select("workspace_id").Where("principal_id = ?", principalID)

	var list []model.Workspace
	err := db.Preload("Members").
		Where("(owner_id = ? OR id IN (?))", principalID, memberOf).
		Order("create_time ASC, id ASC").
		Find(&list).Error
	if err != nil {
		return nil, database.ClassifyError(err)
	}
	return list, nil
}

func (d *GormDirectory) Get(ctx context.Context, id string) (*model.Workspace, error) {
	var ws model.Workspace
	if err := d.db.WithContext(ctx).Preload("Members").Where("id = ?", id).First(&ws).Error; err != nil {
		return nil, database.ClassifyError(err)
	}
	return &ws, nil
}

func (d *GormDirectory) findDefault(ctx context.Context, ownerID string) (*model.Workspace, error) {
	var ws model.Workspace
	err := d.db.WithContext(ctx).Preload("Members").
		Where("owner_id = ? AND is_default = ?", ownerID, true).
		First(&ws).Error
	if err != nil {
		return nil, database.ClassifyError(err)
	}
	return &ws, nil
}

func (d *GormDirectory) EnsureDefault(ctx context.Context, principal *model.Principal) (*model.Workspace, error) {
	ws, err := d.findDefault(ctx, principal.ID)
	if err == nil || !bizerrors.IsNotFound(err) {
		return ws, err
	}

	ws = &model.Workspace{
		Name:         defaultWorkspaceName(principal),
		OwnerID:      principal.ID,
		IsDefault:    true,
		DefaultOwner: model.StringPtr(principal.ID),
		Type:         model.WorkspaceTypePersonal,
	}
	if err := d.db.WithContext(ctx).Create(ws).Error; err != nil {
		err = database.ClassifyError(err)
		// 并发首次登录：唯一索引保证只有一个成功
		if bizerrors.Code(err) == bizerrors.ErrCodeAlreadyExists {
			return d.findDefault(ctx, principal.ID)
		}
		return nil, err
	}
	return ws, nil
}

func defaultWorkspaceName(p *model.Principal) string {
	name := strings.TrimSpace(p.DisplayName)
	if name == "" {
		name, _, _ = strings.Cut(p.Email, "@")
	}
	if name == "" {
		return "Personal"
	}
	return name + "'s workspace"
}

func (d *GormDirectory) Create(ctx context.Context, ownerID string, in CreateInput) (*model.Workspace, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := d.validate.Check(&in); err != nil {
		return nil, err
	}
	if in.Type == "" {
		in.Type = model.WorkspaceTypeTeam
	}
	ws := &model.Workspace{Name: in.Name, OwnerID: ownerID, Type: in.Type}
	if err := d.db.WithContext(ctx).Create(ws).Error; err != nil {
		return nil, database.ClassifyError(err)
	}
	return ws, nil
}

// ownedBy 载入工作区并校验 actor 为所有者
// 非成员返回 UnauthorizedTenantAccess，成员返回 PermissionDenied
func (d *GormDirectory) ownedBy(ctx context.Context, actorID, id string) (*model.Workspace, error) {
	ws, err := d.Get(ctx, id)
	if err != nil {
		if bizerrors.IsNotFound(err) {
			return nil, bizerrors.ErrUnauthorizedTenantAccess
		}
		return nil, err
	}
	switch RoleFor(actorID, *ws) {
	case RoleOwner:
		return ws, nil
	case RoleMember:
		return nil, bizerrors.New(bizerrors.ErrCodePermissionDenied, "only the workspace owner can do this")
	default:
		return nil, bizerrors.ErrUnauthorizedTenantAccess
	}
}

func (d *GormDirectory) Delete(ctx context.Context, actorID, id string) error {
	ws, err := d.ownedBy(ctx, actorID, id)
	if err != nil {
		return err
	}
	if ws.IsDefault {
		return bizerrors.New(bizerrors.ErrCodeFailedPrecondition, "the default workspace cannot be deleted")
	}

	err = d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("workspace_id = ?", id).Delete(&model.Membership{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.Principal{}).
			Where("active_workspace_id = ?", id).
			Update("active_workspace_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(ws).Error
	})
	if err != nil {
		return database.ClassifyError(err)
	}

	d.publish(ctx, events.New(events.TypeWorkspaceDeleted, id, actorID).
		With(AttrMembers, strings.Join(ws.MemberIDs(), ",")))
	return nil
}

func (d *GormDirectory) AddMember(ctx context.Context, actorID, workspaceID, principalID string) error {
	ws, err := d.ownedBy(ctx, actorID, workspaceID)
	if err != nil {
		return err
	}
	if principalID == ws.OwnerID || ws.HasMember(principalID) {
		return nil
	}

	var exists int64
	if err := d.db.WithContext(ctx).Model(&model.Principal{}).Where("id = ?", principalID).Count(&exists).Error; err != nil {
		return database.ClassifyError(err)
	}
	if exists == 0 {
		return bizerrors.ErrNotFound
	}

	m := &model.Membership{WorkspaceID: workspaceID, PrincipalID: principalID}
	if err := d.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(m).Error; err != nil {
		return database.ClassifyError(err)
	}
	d.publish(ctx, events.New(events.TypeMembershipChanged, workspaceID, actorID).
		WithSubject(principalID).
		With(AttrAction, "added"))
	return nil
}

func (d *GormDirectory) RemoveMember(ctx context.Context, actorID, workspaceID, principalID string) error {
	ws, err := d.ownedBy(ctx, actorID, workspaceID)
	if err != nil {
		return err
	}
	if principalID == ws.OwnerID {
		return bizerrors.New(bizerrors.ErrCodeFailedPrecondition, "the owner cannot be removed from the workspace")
	}

	res := d.db.WithContext(ctx).
		Where("workspace_id = ? AND principal_id = ?", workspaceID, principalID).
		Delete(&model.Membership{})
	if res.Error != nil {
		return database.ClassifyError(res.Error)
	}
	if res.RowsAffected == 0 {
		return bizerrors.ErrNotFound
	}
	d.publish(ctx, events.New(events.TypeMembershipChanged, workspaceID, actorID).
		WithSubject(principalID).
		With(AttrAction, "removed"))
	return nil
}

func (d *GormDirectory) ResolvePrincipal(ctx context.Context, email, displayName string) (*model.Principal, error) {
	normalized := model.NormalizeEmail(email)
	if normalized == "" {
		return nil, bizerrors.New(bizerrors.ErrCodeInvalidArgument, "email is required")
	}

	find := func() (*model.Principal, error) {
		var p model.Principal
		if err := d.db.WithContext(ctx).Where("email_ci = ?", normalized).First(&p).Error; err != nil {
			return nil, err
		}
		return &p, nil
	}

	p, err := find()
	switch {
	case err == nil:
		if displayName != "" && p.DisplayName != displayName {
			if err := d.db.WithContext(ctx).Model(p).Update("display_name", displayName).Error; err != nil {
				return nil, database.ClassifyError(err)
			}
			p.DisplayName = displayName
		}
		return p, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, database.ClassifyError(err)
	}

	p = &model.Principal{Email: strings.TrimSpace(email), DisplayName: displayName}
	if err := d.db.WithContext(ctx).Create(p).Error; err != nil {
		err = database.ClassifyError(err)
		if bizerrors.Code(err) == bizerrors.ErrCodeAlreadyExists {
			p, err := find()
			return p, database.ClassifyError(err)
		}
		return nil, err
	}
	return p, nil
}

// publish 事件只用于刷新会话，发布失败不回滚已提交的变更
func (d *GormDirectory) publish(ctx context.Context, e *events.Event) {
	if err := d.publisher.Publish(ctx, e); err != nil {
		d.log.WithContext(ctx).Warn("publish directory event failed",
			zap.String("type", string(e.Type)),
			zap.String("workspace_id", e.WorkspaceID),
			zap.Error(err),
		)
	}
}
