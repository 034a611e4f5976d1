package extension

import (
	"fmt"
	"sort"
	"sync"
)

// Catalog is the compile-time registry of extension factories. Extensions
// add themselves from an init function:
//
//	func init() {
//	    extension.Register("web_search", New)
//	}
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

var defaultCatalog = NewCatalog()

// DefaultCatalog returns the process-wide catalog used by Register.
func DefaultCatalog() *Catalog {
	return defaultCatalog
}

// Register adds a factory to the default catalog. It panics if the name is
// empty, the factory is nil or the name is already taken.
func Register(name string, factory Factory) {
	if err := defaultCatalog.Add(name, factory); err != nil {
		panic(err)
	}
}

// Add registers a factory under name.
func (c *Catalog) Add(name string, factory Factory) error {
	if name == "" {
		return fmt.Errorf("extension name must not be empty")
	}
	if factory == nil {
		return fmt.Errorf("extension %s: factory must not be nil", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.factories[name]; exists {
		return fmt.Errorf("extension %s already registered", name)
	}
	c.factories[name] = factory
	return nil
}

// Get returns the factory registered under name.
func (c *Catalog) Get(name string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[name]
	return f, ok
}

// Names returns the registered identifiers sorted alphabetically.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.factories))
	for name := range c.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
