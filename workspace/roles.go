package workspace

import "github.com/aisgo/ais-workspace/model"

// Role 相对于某个工作区计算出的角色，不做全局存储
type Role string

const (
	RoleNone   Role = "none"
	RoleMember Role = "member"
	RoleOwner  Role = "owner"
)

// IsAdmin 仅所有者拥有管理权限
func (r Role) IsAdmin() bool {
	return r == RoleOwner
}

// CanAccess 成员和所有者可以访问工作区数据
func (r Role) CanAccess() bool {
	return r == RoleOwner || r == RoleMember
}

// RoleFor 计算 principalID 在 ws 中的角色
func RoleFor(principalID string, ws model.Workspace) Role {
	switch {
	case principalID == "":
		return RoleNone
	case ws.OwnerID == principalID:
		return RoleOwner
	case ws.HasMember(principalID):
		return RoleMember
	default:
		return RoleNone
	}
}
