package gormcache

import (
	"reflect"

	"gorm.io/gorm"

	"github.com/unkn0wn-root/cachemodel"
)

// Plugin attaches the write protocol to gorm callbacks:
//
//   - before create/update: denormalized fields are computed and written
//     into the statement;
//   - after create/update/delete has committed: the entity is invalidated.
//
// Statements issued by Repository are skipped.
type Plugin struct {
	coord *cachemodel.Coordinator
	log   cachemodel.Logger
}

var _ gorm.Plugin = (*Plugin)(nil)

func NewPlugin(coord *cachemodel.Coordinator, log cachemodel.Logger) *Plugin {
	if log == nil {
		log = cachemodel.NopLogger{}
	}
	return &Plugin{coord: coord, log: log}
}

func (p *Plugin) Name() string { return "cachemodel" }

func (p *Plugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Create().Before("gorm:create").Register("cachemodel:denormalize_create", p.denormalize); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("cachemodel:denormalize_update", p.denormalize); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:commit_or_rollback_transaction").Register("cachemodel:invalidate_create", p.invalidate); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:commit_or_rollback_transaction").Register("cachemodel:invalidate_update", p.invalidate); err != nil {
		return err
	}
	return cb.Delete().After("gorm:commit_or_rollback_transaction").Register("cachemodel:invalidate_delete", p.invalidate)
}

func skipped(db *gorm.DB) bool {
	if db.Error != nil || db.Statement.Schema == nil {
		return true
	}
	v, ok := db.Get(skipKey)
	return ok && v == true
}

func (p *Plugin) denormalize(db *gorm.DB) {
	if skipped(db) {
		return
	}
	ctx := db.Statement.Context
	eachEntity(db, func(e cachemodel.Entity) {
		vals, err := p.coord.Denormalize(ctx, e)
		if err != nil {
			_ = db.AddError(err)
			return
		}
		for _, kv := range vals {
			db.Statement.SetColumn(kv.Key, kv.Value)
		}
	})
}

// invalidate never fails the statement: the row is already committed.
func (p *Plugin) invalidate(db *gorm.DB) {
	if skipped(db) {
		return
	}
	ctx := db.Statement.Context
	eachEntity(db, func(e cachemodel.Entity) {
		id := e.InstanceID()
		if id == nil || reflect.ValueOf(id).IsZero() {
			return
		}
		if err := p.coord.Invalidate(ctx, e); err != nil {
			p.log.Error("invalidation after write failed", cachemodel.Fields{
				"type": e.TypeName(), "id": id, "table": db.Statement.Table, "err": err,
			})
		}
	})
}

// eachEntity calls fn for every model in the statement that implements
// cachemodel.Entity, keeping Statement.CurDestIndex in step for slices.
func eachEntity(db *gorm.DB, fn func(cachemodel.Entity)) {
	rv := db.Statement.ReflectValue
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			db.Statement.CurDestIndex = i
			if e, ok := asEntity(rv.Index(i)); ok {
				fn(e)
			}
		}
		db.Statement.CurDestIndex = 0
	case reflect.Struct:
		if e, ok := asEntity(rv); ok {
			fn(e)
		}
	}
}

func asEntity(v reflect.Value) (cachemodel.Entity, bool) {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, false
		}
	} else if v.CanAddr() {
		v = v.Addr()
	}
	e, ok := v.Interface().(cachemodel.Entity)
	return e, ok
}
