package gormcache

import (
	"context"
	"errors"
	"os"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/unkn0wn-root/cachemodel"
	"github.com/unkn0wn-root/cachemodel/keys"
)

func postgresDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("CACHEMODEL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CACHEMODEL_TEST_POSTGRES_DSN not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Skipf("Postgres not available for testing: %v", err)
	}
	if err := db.Migrator().DropTable(&Post{}); err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(&Post{}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = db.Migrator().DropTable(&Post{})
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestManagerOverPostgres(t *testing.T) {
	db := postgresDB(t)
	ctx := context.Background()
	c, coord := newCoordinator(t)
	if err := db.Use(NewPlugin(coord, nil)); err != nil {
		t.Fatal(err)
	}

	m, err := cachemodel.NewManager(c, cachemodel.ManagerOptions[*Post]{
		Type:        "Post",
		Repository:  NewRepository[Post](db),
		Lookups:     []string{"slug"},
		Coordinator: coord,
	})
	if err != nil {
		t.Fatal(err)
	}

	// plain gorm write goes through the plugin
	if err := db.Create(&Post{ID: 1, Slug: "a", Title: "first"}).Error; err != nil {
		t.Fatal(err)
	}
	p, err := m.GetBy(ctx, "slug", "a")
	if err != nil || p.Summary != "summary of a" {
		t.Fatalf("GetBy: %+v err=%v", p, err)
	}

	// manager write
	p.Title = "second"
	if err := m.Save(ctx, p); err != nil {
		t.Fatal(err)
	}
	if got, _ := m.GetBy(ctx, "slug", "a"); got.Title != "second" {
		t.Fatalf("after Save: %+v", got)
	}

	// plain gorm update behind the manager's back
	if err := db.Model(&Post{ID: 1}).Update("title", "third").Error; err != nil {
		t.Fatal(err)
	}
	if got, _ := m.GetBy(ctx, "slug", "a"); got.Title != "third" {
		t.Fatalf("after gorm update: %+v", got)
	}

	if got, err := m.GetCached(ctx, keys.Of(int64(1))); err != nil || got.Slug != "a" {
		t.Fatalf("GetCached by pk: %+v err=%v", got, err)
	}
	if got, err := m.GetCached(ctx, keys.Args{}.With("slug", "a")); err != nil || got.ID != 1 {
		t.Fatalf("GetCached by slug: %+v err=%v", got, err)
	}
	all, err := m.All(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("All: %d err=%v", len(all), err)
	}

	_, err = m.GetBy(ctx, "slug", "missing")
	if !errors.Is(err, cachemodel.ErrNotFound) || !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("not found: %v", err)
	}

	if err := m.Delete(ctx, &Post{ID: 1, Slug: "a"}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetBy(ctx, "slug", "a"); !errors.Is(err, cachemodel.ErrNotFound) {
		t.Fatalf("after delete: %v", err)
	}
}
