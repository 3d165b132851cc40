package api

import (
	"github.com/gofiber/fiber/v3"

	"github.com/aisgo/ais-workspace/guard"
	"github.com/aisgo/ais-workspace/repository"
	"github.com/aisgo/ais-workspace/response"
)

/* ========================================================================
 * Entity Routes - 租户隔离实体的通用 CRUD 路由
 * ========================================================================
 * 每个请求以其工作区上下文构造 ScopedRepository，操作期间只读取一次活动租户
 *
 *   GET    /:entity              分页列表 (page, page_size, sort, 过滤列)
 *   GET    /:entity/:id
 *   POST   /:entity
 *   PATCH  /:entity/:id
 *   DELETE /:entity/:id
 *   POST   /:entity/export       批量导出，要求全部记录属于活动租户
 *   POST   /:entity/batch_delete
 * ======================================================================== */

const maxBatchSize = 500

type entityHandler[T any, P repository.Record[T]] struct {
	name       string
	backend    repository.Backend[T]
	opts       repository.Options
	filterable []string
}

// RegisterEntity 在 r 下注册实体 name 的路由；filterable 为列表接口允许的等值过滤列
func RegisterEntity[T any, P repository.Record[T]](r fiber.Router, name string, backend repository.Backend[T], opts repository.Options, filterable ...string) {
	h := &entityHandler[T, P]{
		name:       name,
		backend:    backend,
		opts:       opts.WithEntity(name),
		filterable: filterable,
	}

	g := r.Group("/" + name)
	g.Get("/", h.list)
	g.Post("/", h.create)
	g.Post("/export", h.export)
	g.Post("/batch_delete", h.batchDelete)
	g.Get("/:id", h.get)
	g.Patch("/:id", h.update)
	g.Delete("/:id", h.remove)
}

func (h *entityHandler[T, P]) repo(c fiber.Ctx) (*repository.ScopedRepository[T, P], error) {
	wc, _, err := session(c)
	if err != nil {
		return nil, err
	}
	return repository.NewScoped[T, P](h.backend, wc, h.opts), nil
}

func (h *entityHandler[T, P]) list(c fiber.Ctx) error {
	repo, err := h.repo(c)
	if err != nil {
		return response.Error(c, err)
	}
	page, err := queryInt(c, "page", 1)
	if err != nil {
		return response.Error(c, err)
	}
	pageSize, err := queryInt(c, "page_size", 0)
	if err != nil {
		return response.Error(c, err)
	}

	filter := repository.Filter{}
	for _, col := range h.filterable {
		if v := c.Query(col); v != "" {
			filter[col] = v
		}
	}
	var opts []repository.ListOption
	if sort := c.Query("sort"); sort != "" {
		opts = append(opts, repository.WithSort(sort))
	}

	result, err := repo.Page(c.Context(), page, pageSize, filter, opts...)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Page(c, result)
}

func (h *entityHandler[T, P]) get(c fiber.Ctx) error {
	repo, err := h.repo(c)
	if err != nil {
		return response.Error(c, err)
	}
	rec, err := repo.Get(c.Context(), c.Params("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.OkWithData(c, rec)
}

func (h *entityHandler[T, P]) create(c fiber.Ctx) error {
	repo, err := h.repo(c)
	if err != nil {
		return response.Error(c, err)
	}
	rec := new(T)
	if err := bindJSON(c, rec); err != nil {
		return response.Error(c, err)
	}
	created, err := repo.Create(c.Context(), rec)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, created)
}

func (h *entityHandler[T, P]) update(c fiber.Ctx) error {
	repo, err := h.repo(c)
	if err != nil {
		return response.Error(c, err)
	}
	var fields map[string]any
	if err := bindJSON(c, &fields); err != nil {
		return response.Error(c, err)
	}
	updated, err := repo.Update(c.Context(), c.Params("id"), fields)
	if err != nil {
		return response.Error(c, err)
	}
	return response.OkWithData(c, updated)
}

func (h *entityHandler[T, P]) remove(c fiber.Ctx) error {
	repo, err := h.repo(c)
	if err != nil {
		return response.Error(c, err)
	}
	if err := repo.Delete(c.Context(), c.Params("id")); err != nil {
		return response.Error(c, err)
	}
	return response.Ok(c)
}

func (h *entityHandler[T, P]) export(c fiber.Ctx) error {
	wc, _, err := session(c)
	if err != nil {
		return response.Error(c, err)
	}
	repo, err := h.repo(c)
	if err != nil {
		return response.Error(c, err)
	}
	var req idsRequest
	if err := bindJSON(c, &req); err != nil {
		return response.Error(c, err)
	}
	if err := req.validate(); err != nil {
		return response.Error(c, err)
	}

	list, err := repo.FindByIDs(c.Context(), req.IDs)
	if err != nil {
		return response.Error(c, err)
	}
	records := make([]P, len(list))
	for i, rec := range list {
		records[i] = P(rec)
	}
	if err := guard.Check(c.Context(), guard.NewValidator(wc, h.opts.Recorder), h.name, "export", records...); err != nil {
		return response.Error(c, err)
	}
	return response.OkWithData(c, fiber.Map{"list": list, "missing": len(req.IDs) - len(list)})
}

func (h *entityHandler[T, P]) batchDelete(c fiber.Ctx) error {
	repo, err := h.repo(c)
	if err != nil {
		return response.Error(c, err)
	}
	var req idsRequest
	if err := bindJSON(c, &req); err != nil {
		return response.Error(c, err)
	}
	if err := req.validate(); err != nil {
		return response.Error(c, err)
	}
	n, err := repo.DeleteBatch(c.Context(), req.IDs)
	if err != nil {
		return response.Error(c, err)
	}
	return response.OkWithData(c, fiber.Map{"deleted": n})
}
