package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-workspaces/core"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db *bun.DB

	activityStore *WatchActivityStore
	cached        *CachedActivityStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// BuildStores accepts a *bun.DB or anything exposing DB() *bun.DB, such as
// a go-persistence-bun client.
func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.activityStore != nil {
		return nil
	}
	store, err := NewWatchActivityStore(f.db)
	if err != nil {
		return err
	}
	f.activityStore = store
	return nil
}

// WithCache fronts the activity reader with cacheService.
func (f *RepositoryFactory) WithCache(cacheService repositorycache.CacheService) error {
	if f == nil || f.activityStore == nil {
		return fmt.Errorf("sqlstore: stores are not built")
	}
	cached, err := NewCachedActivityStore(f.activityStore, cacheService)
	if err != nil {
		return err
	}
	f.cached = cached
	return nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) WatchActivityStore() *WatchActivityStore {
	if f == nil {
		return nil
	}
	return f.activityStore
}

// ActivityRecorder returns the cached store when one is configured so that
// writes invalidate cached pages.
func (f *RepositoryFactory) ActivityRecorder() core.ActivityRecorder {
	if f == nil {
		return nil
	}
	if f.cached != nil {
		return f.cached
	}
	return f.activityStore
}

func (f *RepositoryFactory) ActivityReader() core.ActivityReader {
	if f == nil {
		return nil
	}
	if f.cached != nil {
		return f.cached
	}
	return f.activityStore
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
