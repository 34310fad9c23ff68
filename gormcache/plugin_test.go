package gormcache

import (
	"context"
	"slices"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/unkn0wn-root/cachemodel"
)

// dryRunDB builds statements without a server.
func dryRunDB(t *testing.T, coord *cachemodel.Coordinator) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=127.0.0.1 user=cachemodel dbname=cachemodel sslmode=disable",
	}), &gorm.Config{
		DryRun:                 true,
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	if err := db.Use(NewPlugin(coord, nil)); err != nil {
		t.Fatalf("Use: %v", err)
	}
	return db
}

func nsKey(t *testing.T, c *cachemodel.Cache, e cachemodel.Entity) string {
	t.Helper()
	k, err := c.NamespaceKey(context.Background(), e, "marker")
	if err != nil {
		t.Fatal(err)
	}
	return k
}

func TestPluginDenormalizesAndInvalidatesOnCreate(t *testing.T) {
	c, coord := newCoordinator(t)
	db := dryRunDB(t, coord)

	p := &Post{ID: 1, Slug: "a", Summary: "stale"}
	before := nsKey(t, c, p)

	tx := db.Create(p)
	if tx.Error != nil {
		t.Fatalf("Create: %v", tx.Error)
	}
	if p.Summary != "summary of a" {
		t.Fatalf("summary=%q", p.Summary)
	}
	if !slices.Contains(tx.Statement.Vars, any("summary of a")) {
		t.Fatalf("denormalized value not in statement vars: %v", tx.Statement.Vars)
	}
	if after := nsKey(t, c, p); after == before {
		t.Fatalf("namespace not flushed: %s", after)
	}
}

func TestPluginHandlesSlices(t *testing.T) {
	c, coord := newCoordinator(t)
	db := dryRunDB(t, coord)

	posts := []Post{{ID: 2, Slug: "b"}, {ID: 3, Slug: "c"}}
	before := []string{nsKey(t, c, &posts[0]), nsKey(t, c, &posts[1])}
	if err := db.Create(&posts).Error; err != nil {
		t.Fatal(err)
	}
	for i := range posts {
		if posts[i].Summary != "summary of "+posts[i].Slug {
			t.Fatalf("post %d summary=%q", posts[i].ID, posts[i].Summary)
		}
		if nsKey(t, c, &posts[i]) == before[i] {
			t.Fatalf("post %d namespace not flushed", posts[i].ID)
		}
	}
}

func TestPluginOnUpdate(t *testing.T) {
	c, coord := newCoordinator(t)
	db := dryRunDB(t, coord)

	p := &Post{ID: 4, Slug: "d", Summary: "old"}
	before := nsKey(t, c, p)
	if err := db.Model(p).Updates(map[string]any{"title": "T"}).Error; err != nil {
		t.Fatal(err)
	}
	if nsKey(t, c, p) == before {
		t.Fatalf("update should flush the namespace")
	}
}

func TestRepositoryWritesSkipPlugin(t *testing.T) {
	c, coord := newCoordinator(t)
	db := dryRunDB(t, coord)
	repo := NewRepository[Post](db)

	p := &Post{ID: 5, Slug: "e", Summary: "kept"}
	before := nsKey(t, c, p)
	if err := repo.Save(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	if p.Summary != "kept" || nsKey(t, c, p) != before {
		t.Fatalf("repository writes are the manager's to handle: summary=%q", p.Summary)
	}
}
