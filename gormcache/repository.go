// Package gormcache connects cachemodel to gorm: a Repository backing
// cachemodel.Manager, and a Plugin that runs denormalization and cache
// invalidation from gorm callbacks for writes that bypass the Manager.
package gormcache

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/unkn0wn-root/cachemodel"
	"github.com/unkn0wn-root/cachemodel/keys"
)

// skipKey marks statements issued by Repository. The Manager already runs
// the write protocol for them, so the Plugin stays out.
const skipKey = "cachemodel:skip_callbacks"

// Repository implements cachemodel.Repository for the gorm model T.
// M is *T and must implement cachemodel.Entity.
type Repository[T any, M interface {
	*T
	cachemodel.Entity
}] struct {
	db      *gorm.DB
	columns map[string]string
}

type Option func(*options)

type options struct{ columns map[string]string }

// WithColumn maps a lookup field onto a column name. Unmapped fields are
// used as column names verbatim.
func WithColumn(field, column string) Option {
	return func(o *options) {
		if o.columns == nil {
			o.columns = make(map[string]string)
		}
		o.columns[field] = column
	}
}

func NewRepository[T any, M interface {
	*T
	cachemodel.Entity
}](db *gorm.DB, opts ...Option) *Repository[T, M] {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return &Repository[T, M]{db: db, columns: o.columns}
}

func (r *Repository[T, M]) column(field string) string {
	if c, ok := r.columns[field]; ok {
		return c
	}
	return field
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %w", cachemodel.ErrNotFound, err)
	}
	return err
}

func (r *Repository[T, M]) FindBy(ctx context.Context, field string, value any) (M, error) {
	m := M(new(T))
	err := r.db.WithContext(ctx).
		Where(clause.Eq{Column: clause.Column{Name: r.column(field)}, Value: value}).
		Take(m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

// Query resolves GetCached arguments: one positional argument is a primary
// key; named arguments are ANDed column equalities in order.
func (r *Repository[T, M]) Query(ctx context.Context, args keys.Args) (M, error) {
	if len(args.Positional) > 1 || (len(args.Positional) == 1 && len(args.Named) > 0) {
		return nil, fmt.Errorf("gormcache: unsupported query %s", args.Signature())
	}
	m := M(new(T))
	tx := r.db.WithContext(ctx)
	if len(args.Positional) == 1 {
		if err := tx.Take(m, args.Positional[0]).Error; err != nil {
			return nil, notFound(err)
		}
		return m, nil
	}
	for _, kv := range args.Named {
		tx = tx.Where(clause.Eq{Column: clause.Column{Name: r.column(kv.Key)}, Value: kv.Value})
	}
	if err := tx.Take(m).Error; err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

func (r *Repository[T, M]) All(ctx context.Context) ([]M, error) {
	var rows []T
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]M, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

func (r *Repository[T, M]) Save(ctx context.Context, m M) error {
	return r.db.WithContext(ctx).Set(skipKey, true).Save(m).Error
}

func (r *Repository[T, M]) Delete(ctx context.Context, m M) error {
	return r.db.WithContext(ctx).Set(skipKey, true).Delete(m).Error
}
