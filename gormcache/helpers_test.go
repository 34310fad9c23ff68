package gormcache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/unkn0wn-root/cachemodel"
	"github.com/unkn0wn-root/cachemodel/provider/ristretto"
)

type Post struct {
	ID      int64  `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Slug    string `gorm:"uniqueIndex" json:"slug"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

func (*Post) TypeName() string  { return "Post" }
func (p *Post) InstanceID() any { return p.ID }

func (p *Post) Field(name string) (any, bool) {
	switch name {
	case "id":
		return p.ID, true
	case "slug":
		return p.Slug, true
	case "title":
		return p.Title, true
	}
	return nil, false
}

func (p *Post) SetField(name string, v any) error {
	if name != "summary" {
		return fmt.Errorf("field %s is not settable", name)
	}
	p.Summary, _ = v.(string)
	return nil
}

func newCoordinator(t *testing.T) (*cachemodel.Cache, *cachemodel.Coordinator) {
	t.Helper()
	p, err := ristretto.New(ristretto.Config{NumCounters: 1e4, MaxCost: 1 << 20, BufferItems: 64})
	if err != nil {
		t.Fatal(err)
	}
	c, err := cachemodel.New(cachemodel.Options{Provider: p, DefaultTimeout: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	coord := cachemodel.NewCoordinator(c)
	err = coord.RegisterDenormalized("Post", "summary", func(_ context.Context, e cachemodel.Entity) (any, error) {
		return "summary of " + e.(*Post).Slug, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return c, coord
}
