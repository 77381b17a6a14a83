package qllm

import (
	"context"
	"sync"
)

// TemplateStore is the interface for pluggable template storage backends.
// Implementations must be safe for concurrent use.
type TemplateStore interface {
	// Get retrieves a template by name.
	// Returns a template-not-found error if it doesn't exist.
	Get(ctx context.Context, name string) (*TemplateDefinition, error)

	// Save stores a template, replacing any existing template of the same name.
	Save(ctx context.Context, tmpl *TemplateDefinition) error

	// Delete removes a template by name.
	// Returns a template-not-found error if it doesn't exist.
	Delete(ctx context.Context, name string) error

	// List returns all stored templates.
	List(ctx context.Context) ([]*TemplateDefinition, error)

	// Exists checks if a template with the given name exists.
	Exists(ctx context.Context, name string) (bool, error)

	// Names returns all stored template names in sorted order.
	Names(ctx context.Context) ([]string, error)

	// Close releases any resources held by the store.
	// After Close, the store should not be used.
	Close() error
}

// StoreDriver is a factory for creating store instances.
// Drivers register themselves during init().
type StoreDriver interface {
	// Open creates a new store instance with the given connection string.
	// The format of the connection string is driver-specific.
	Open(connectionString string) (TemplateStore, error)
}

// Store driver registry.
var (
	storeDriversMu sync.RWMutex
	storeDrivers   = make(map[string]StoreDriver)
)

// RegisterStoreDriver registers a store driver by name.
// This is typically called from a driver's init() function.
// Panics if a driver with the same name is already registered.
func RegisterStoreDriver(name string, driver StoreDriver) {
	storeDriversMu.Lock()
	defer storeDriversMu.Unlock()

	if driver == nil {
		panic(ErrMsgStoreDriverUnknown)
	}
	if _, exists := storeDrivers[name]; exists {
		panic(ErrMsgStoreDriverUnknown + ": " + name)
	}
	storeDrivers[name] = driver
}

// OpenStore opens a store using the named driver.
//
// Example:
//
//	store, err := qllm.OpenStore("memory", "")
//	store, err := qllm.OpenStore("filesystem", "/path/to/templates")
//	store, err := qllm.OpenStore("postgres", "postgres://user:pw@host/db")
func OpenStore(driverName, connectionString string) (TemplateStore, error) {
	storeDriversMu.RLock()
	driver, ok := storeDrivers[driverName]
	storeDriversMu.RUnlock()

	if !ok {
		return nil, NewStoreDriverNotFoundError(driverName)
	}

	return driver.Open(connectionString)
}

// ListStoreDrivers returns the names of all registered store drivers.
func ListStoreDrivers() []string {
	storeDriversMu.RLock()
	defer storeDriversMu.RUnlock()

	names := make([]string, 0, len(storeDrivers))
	for name := range storeDrivers {
		names = append(names, name)
	}
	return names
}
