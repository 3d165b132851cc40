package api

import (
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	bizerrors "github.com/aisgo/ais-workspace/errors"
	"github.com/aisgo/ais-workspace/logger"
	"github.com/aisgo/ais-workspace/model"
	"github.com/aisgo/ais-workspace/response"
	"github.com/aisgo/ais-workspace/workspace"
)

// WorkspaceHandler 工作区列表、切换与成员管理
type WorkspaceHandler struct {
	dir      workspace.Directory
	registry *workspace.Registry
	log      *logger.Logger
}

func NewWorkspaceHandler(dir workspace.Directory, registry *workspace.Registry, log *logger.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{dir: dir, registry: registry, log: log}
}

// Register 注册 /workspaces 路由
func (h *WorkspaceHandler) Register(r fiber.Router) {
	g := r.Group("/workspaces")
	g.Get("/", h.list)
	g.Post("/", h.create)
	g.Get("/active", h.active)
	g.Put("/active", h.switchActive)
	g.Post("/refresh", h.refresh)
	g.Delete("/:id", h.remove)
	g.Put("/:id/members/:principalID", h.addMember)
	g.Delete("/:id/members/:principalID", h.removeMember)
}

// workspaceView 角色相对当前主体计算
type workspaceView struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Type      model.WorkspaceType `json:"type"`
	OwnerID   string              `json:"owner_id"`
	IsDefault bool                `json:"is_default"`
	Role      workspace.Role      `json:"role"`
	Active    bool                `json:"active"`
}

type workspaceList struct {
	List       []workspaceView `json:"list"`
	ActiveID   string          `json:"active_id"`
	Generation uint64          `json:"generation,string"`
}

// viewSource 由 *workspace.Context 实现
type viewSource interface {
	Snapshot() (workspace.Snapshot, error)
	AccessibleTenants() []model.Workspace
}

// viewOf 活动租户切换中时返回 ErrWorkspaceNotReady
func viewOf(wc viewSource) (workspaceList, error) {
	snap, err := wc.Snapshot()
	if err != nil {
		return workspaceList{}, err
	}
	tenants := wc.AccessibleTenants()
	out := workspaceList{
		List:       make([]workspaceView, 0, len(tenants)),
		ActiveID:   snap.TenantID,
		Generation: snap.Generation,
	}
	for _, ws := range tenants {
		out.List = append(out.List, workspaceView{
			ID:        ws.ID,
			Name:      ws.Name,
			Type:      ws.Type,
			OwnerID:   ws.OwnerID,
			IsDefault: ws.IsDefault,
			Role:      workspace.RoleFor(snap.PrincipalID, ws),
			Active:    ws.ID == snap.TenantID,
		})
	}
	return out, nil
}

// writeView 以 wc 当前视图响应
func writeView(c fiber.Ctx, wc viewSource) error {
	view, err := viewOf(wc)
	if err != nil {
		return response.Error(c, err)
	}
	return response.OkWithData(c, view)
}

func (h *WorkspaceHandler) list(c fiber.Ctx) error {
	wc, _, err := session(c)
	if err != nil {
		return response.Error(c, err)
	}
	return writeView(c, wc)
}

func (h *WorkspaceHandler) active(c fiber.Ctx) error {
	wc, _, err := session(c)
	if err != nil {
		return response.Error(c, err)
	}
	view, err := viewOf(wc)
	if err != nil {
		return response.Error(c, err)
	}
	for _, v := range view.List {
		if v.Active {
			return response.OkWithData(c, v)
		}
	}
	return response.Error(c, bizerrors.ErrWorkspaceNotReady)
}

func (h *WorkspaceHandler) create(c fiber.Ctx) error {
	_, p, err := session(c)
	if err != nil {
		return response.Error(c, err)
	}
	var req workspace.CreateInput
	if err := bindJSON(c, &req); err != nil {
		return response.Error(c, err)
	}
	ws, err := h.dir.Create(c.Context(), p.ID, req)
	if err != nil {
		return response.Error(c, err)
	}
	h.refreshPrincipal(c, p.ID)
	return response.Created(c, ws)
}

type switchRequest struct {
	WorkspaceID string `json:"workspace_id"`
}

func (h *WorkspaceHandler) switchActive(c fiber.Ctx) error {
	wc, _, err := session(c)
	if err != nil {
		return response.Error(c, err)
	}
	var req switchRequest
	if err := bindJSON(c, &req); err != nil {
		return response.Error(c, err)
	}
	if req.WorkspaceID == "" {
		return response.Error(c, bizerrors.New(bizerrors.ErrCodeInvalidArgument, "workspace_id is required"))
	}
	if err := wc.SwitchTenant(c.Context(), req.WorkspaceID); err != nil {
		return response.Error(c, err)
	}
	return writeView(c, wc)
}

func (h *WorkspaceHandler) refresh(c fiber.Ctx) error {
	wc, _, err := session(c)
	if err != nil {
		return response.Error(c, err)
	}
	if err := wc.Refresh(c.Context()); err != nil {
		return response.Error(c, err)
	}
	return writeView(c, wc)
}

func (h *WorkspaceHandler) remove(c fiber.Ctx) error {
	_, p, err := session(c)
	if err != nil {
		return response.Error(c, err)
	}
	if err := h.dir.Delete(c.Context(), p.ID, c.Params("id")); err != nil {
		return response.Error(c, err)
	}
	h.refreshPrincipal(c, p.ID)
	return response.Ok(c)
}

func (h *WorkspaceHandler) addMember(c fiber.Ctx) error {
	_, p, err := session(c)
	if err != nil {
		return response.Error(c, err)
	}
	target := c.Params("principalID")
	if err := h.dir.AddMember(c.Context(), p.ID, c.Params("id"), target); err != nil {
		return response.Error(c, err)
	}
	h.refreshPrincipal(c, target)
	return response.Ok(c)
}

func (h *WorkspaceHandler) removeMember(c fiber.Ctx) error {
	_, p, err := session(c)
	if err != nil {
		return response.Error(c, err)
	}
	target := c.Params("principalID")
	if err := h.dir.RemoveMember(c.Context(), p.ID, c.Params("id"), target); err != nil {
		return response.Error(c, err)
	}
	h.refreshPrincipal(c, target)
	return response.Ok(c)
}

// refreshPrincipal 刷新本实例持有的会话；其他实例经成员变更事件刷新
func (h *WorkspaceHandler) refreshPrincipal(c fiber.Ctx, principalID string) {
	if err := h.registry.RefreshPrincipal(c.Context(), principalID); err != nil {
		h.log.WithContext(c.Context()).Warn("refresh workspace session failed",
			zap.String("principal_id", principalID), zap.Error(err))
	}
}
