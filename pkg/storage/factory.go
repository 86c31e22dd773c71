package storage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/fastctx/fastctx/pkg/config"
)

// Options carries the settings every ledger backend may read
type Options struct {
	BaseDir     string // jsonfile: runs are kept under BaseDir/runs
	DBPath      string // sqlite
	DisableWAL  bool
	CacheSize   int // sqlite page cache in KB
	BusyTimeout int // sqlite lock wait in milliseconds
}

// StoreFactory opens a ledger backend
type StoreFactory func(opts Options) (Store, error)

var (
	storeMu       sync.RWMutex
	storeRegistry = make(map[string]StoreFactory)
)

// RegisterStore registers a new store implementation
func RegisterStore(name string, factory StoreFactory) {
	storeMu.Lock()
	defer storeMu.Unlock()
	storeRegistry[name] = factory
}

// NewStore opens the ledger backend registered under name
func NewStore(name string, opts Options) (Store, error) {
	storeMu.RLock()
	factory, exists := storeRegistry[name]
	storeMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown store type: %s", name)
	}

	return factory(opts)
}

// Open opens the ledger selected by cfg.StorageType
func Open(cfg *config.Config) (Store, error) {
	return NewStore(cfg.StorageType, Options{
		BaseDir: cfg.BaseDir,
		DBPath:  cfg.DBPath,
	})
}

// ListStores returns all registered store types
func ListStores() []string {
	storeMu.RLock()
	defer storeMu.RUnlock()

	stores := make([]string, 0, len(storeRegistry))
	for name := range storeRegistry {
		stores = append(stores, name)
	}
	sort.Strings(stores)
	return stores
}

func init() {
	RegisterStore("jsonfile", func(opts Options) (Store, error) {
		if opts.BaseDir == "" {
			opts.BaseDir = "data"
		}
		return NewJSONFileStore(opts.BaseDir)
	})

	RegisterStore("sqlite", func(opts Options) (Store, error) {
		sqliteConfig := SQLiteConfig{
			DBPath:      opts.DBPath,
			EnableWAL:   !opts.DisableWAL,
			CacheSize:   2000, // 2MB
			BusyTimeout: 5000, // 5 seconds
		}
		if opts.CacheSize > 0 {
			sqliteConfig.CacheSize = opts.CacheSize
		}
		if opts.BusyTimeout > 0 {
			sqliteConfig.BusyTimeout = opts.BusyTimeout
		}
		return NewSQLiteStore(sqliteConfig)
	})
}
