package storage

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"sync"
)

// DriverConfig is the fully merged configuration a backend is built from.
type DriverConfig struct {
	// Dynamic is set when the driver was built for a shard rather than from
	// static configuration.
	Dynamic bool
	// Storage names the backend type, normally the URI scheme.
	Storage string
	URI     string
	Options map[string]any
}

// StorageType returns Storage, falling back to the scheme of URI.
func (c DriverConfig) StorageType() string {
	if c.Storage != "" {
		return c.Storage
	}
	if u, err := url.Parse(c.URI); err == nil {
		return u.Scheme
	}
	return ""
}

// Factory builds a data driver from its configuration.
type Factory interface {
	Build(cfg DriverConfig) (DataDriver, error)
}

type Constructor func(cfg DriverConfig) (DataDriver, error)

// Loader is a Factory that dispatches on the storage type.
type Loader struct {
	mut          sync.RWMutex
	constructors map[string]Constructor
}

var _ Factory = (*Loader)(nil)

func NewLoader() *Loader {
	return &Loader{constructors: make(map[string]Constructor)}
}

func (l *Loader) Register(storageType string, c Constructor) {
	l.mut.Lock()
	defer l.mut.Unlock()
	l.constructors[storageType] = c
}

// Types returns the registered storage types in sorted order.
func (l *Loader) Types() []string {
	l.mut.RLock()
	defer l.mut.RUnlock()
	return slices.Sorted(maps.Keys(l.constructors))
}

func (l *Loader) Build(cfg DriverConfig) (DataDriver, error) {
	storageType := cfg.StorageType()

	l.mut.RLock()
	c, ok := l.constructors[storageType]
	l.mut.RUnlock()
	if !ok {
		return nil, &InvalidDriverError{Storage: storageType, Err: errors.New("no driver registered for this type")}
	}

	driver, err := c(cfg)
	if err != nil {
		return nil, &InvalidDriverError{Storage: storageType, Err: err}
	}
	if driver == nil {
		return nil, &InvalidDriverError{Storage: storageType, Err: fmt.Errorf("constructor returned no driver")}
	}
	return driver, nil
}
