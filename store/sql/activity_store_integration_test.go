package sqlstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-workspaces/core"
	"github.com/goliatone/go-workspaces/migrations"
	sqlstore "github.com/goliatone/go-workspaces/store/sql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-workspaces-tests"
}

func newSQLiteClient(t *testing.T) *persistence.Client {
	t.Helper()
	dsn := fmt.Sprintf("file:workspaces-test-%d?mode=memory&cache=shared", time.Now().UnixNano())
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	client, err := persistence.New(testPersistenceConfig{driver: "sqlite3", server: dsn}, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	if err := migrations.Apply(context.Background(), client, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return client
}

func newTestCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}

func TestWatchActivityStore_RecordAndList(t *testing.T) {
	client := newSQLiteClient(t)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	store := factory.WatchActivityStore()
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	entries := []core.ActivityEntry{
		{Action: core.ActivitySubscribed, Namespace: "ns-a", SinkID: "ws_1", Status: "ok", CreatedAt: base},
		{Action: core.ActivityWatchOpened, Namespace: "ns-a", Status: "ok", CreatedAt: base.Add(time.Second)},
		{
			Action:    core.ActivityWatchFailed,
			Namespace: "ns-a",
			Status:    "failed",
			Message:   "stream closed",
			Metadata:  map[string]any{"access_token": "secret", "attempt": "2"},
			CreatedAt: base.Add(2 * time.Second),
		},
		{Action: core.ActivitySubscribed, Namespace: "ns-b", SinkID: "ws_2", Status: "ok", CreatedAt: base.Add(3 * time.Second)},
	}
	for _, entry := range entries {
		if err := store.Record(ctx, entry); err != nil {
			t.Fatalf("record %s: %v", entry.Action, err)
		}
	}

	page, err := store.List(ctx, core.ActivityFilter{Namespace: "ns-a", PerPage: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 3 || len(page.Items) != 2 || !page.HasNext {
		t.Fatalf("unexpected page total=%d items=%d hasNext=%v", page.Total, len(page.Items), page.HasNext)
	}
	newest := page.Items[0]
	if newest.Action != core.ActivityWatchFailed || newest.Message != "stream closed" {
		t.Fatalf("expected newest entry first, got %+v", newest)
	}
	if newest.Metadata["access_token"] != core.RedactedValue || newest.Metadata["attempt"] != "2" {
		t.Fatalf("expected redacted metadata, got %v", newest.Metadata)
	}
	if newest.ID == "" {
		t.Fatalf("expected generated id")
	}

	subscribed, err := store.List(ctx, core.ActivityFilter{Action: core.ActivitySubscribed})
	if err != nil {
		t.Fatalf("list by action: %v", err)
	}
	if subscribed.Total != 2 {
		t.Fatalf("expected two subscribe entries, got %d", subscribed.Total)
	}

	if err := store.Record(ctx, core.ActivityEntry{}); err == nil {
		t.Fatalf("expected error for entry without action")
	}
}

func TestWatchActivityStore_PruneByRowCap(t *testing.T) {
	client := newSQLiteClient(t)
	store, err := sqlstore.NewWatchActivityStore(client.DB())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := store.Record(ctx, core.ActivityEntry{
			Action:    core.ActivityWatchOpened,
			Namespace: "ns-a",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	deleted, err := store.Prune(ctx, sqlstore.RetentionPolicy{RowCap: 2})
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 3 {
		t.Fatalf("expected three rows pruned, got %d", deleted)
	}
	page, err := store.List(ctx, core.ActivityFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 2 || !page.Items[len(page.Items)-1].CreatedAt.Equal(base.Add(3*time.Minute)) {
		t.Fatalf("expected the newest rows to survive, got %+v", page.Items)
	}
}

func TestCachedActivityStore_InvalidatesOnRecord(t *testing.T) {
	client := newSQLiteClient(t)
	factory, err := sqlstore.NewRepositoryFactoryFromDB(client.DB())
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if err := factory.WithCache(newTestCacheService(t)); err != nil {
		t.Fatalf("with cache: %v", err)
	}
	recorder := factory.ActivityRecorder()
	reader := factory.ActivityReader()
	ctx := context.Background()

	if err := recorder.Record(ctx, core.ActivityEntry{Action: core.ActivitySubscribed, Namespace: "ns-a"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	first, err := reader.List(ctx, core.ActivityFilter{Namespace: "ns-a"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if first.Total != 1 {
		t.Fatalf("expected one entry, got %d", first.Total)
	}

	// A write that bypasses the cached store is not visible until the
	// cached store itself records something.
	if err := factory.WatchActivityStore().Record(ctx, core.ActivityEntry{Action: core.ActivityWatchOpened, Namespace: "ns-a"}); err != nil {
		t.Fatalf("direct record: %v", err)
	}
	cached, err := reader.List(ctx, core.ActivityFilter{Namespace: "ns-a"})
	if err != nil {
		t.Fatalf("cached list: %v", err)
	}
	if cached.Total != 1 {
		t.Fatalf("expected cached page, got total %d", cached.Total)
	}

	if err := recorder.Record(ctx, core.ActivityEntry{Action: core.ActivityUnsubscribed, Namespace: "ns-a"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	fresh, err := reader.List(ctx, core.ActivityFilter{Namespace: "ns-a"})
	if err != nil {
		t.Fatalf("fresh list: %v", err)
	}
	if fresh.Total != 3 {
		t.Fatalf("expected cache invalidated by record, got total %d", fresh.Total)
	}
	all, err := reader.List(ctx, core.ActivityFilter{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if all.Total != 3 {
		t.Fatalf("expected all-namespace view to see every entry, got %d", all.Total)
	}
}

func TestRepositoryFactory_RejectsUnsupportedClient(t *testing.T) {
	if err := sqlstore.NewRepositoryFactory().BuildStores("not a db"); err == nil {
		t.Fatalf("expected error for unsupported client")
	}
	if err := sqlstore.NewRepositoryFactory().WithCache(nil); err == nil {
		t.Fatalf("expected error before stores are built")
	}
}
