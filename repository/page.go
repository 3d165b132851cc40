package repository

import (
	"context"
	"math"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// Page 分页查询；页码从 1 开始，total 与 list 使用同一快照
func (r *ScopedRepository[T, P]) Page(ctx context.Context, page, pageSize int, filter Filter, opts ...ListOption) (*PageResult[T], error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	ctx, c, err := r.begin(ctx, "page")
	if err != nil {
		return nil, err
	}

	q := Query{Filter: filter}
	for _, opt := range opts {
		opt(&q)
	}
	q.Limit = pageSize
	q.Offset = (page - 1) * pageSize

	total, err := run(ctx, r.retry, r.log, r.op(c.name), func(ctx context.Context) (int64, error) {
		return r.backend.Count(ctx, q)
	})
	if err != nil {
		return nil, r.finish(ctx, c, err)
	}

	var list []*T
	if int64(q.Offset) < total {
		list, err = run(ctx, r.retry, r.log, r.op(c.name), func(ctx context.Context) ([]*T, error) {
			return r.backend.Find(ctx, q)
		})
		if err == nil {
			list = r.contain(ctx, c, list)
		}
	}
	if err := r.finish(ctx, c, err); err != nil {
		return nil, err
	}

	return &PageResult[T]{
		List:       list,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		Pages:      int64(math.Ceil(float64(total) / float64(pageSize))),
		Generation: c.snap.Generation,
	}, nil
}
