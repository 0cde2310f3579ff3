package stationconfig

import (
	"fmt"
	"os"
	"sync"

	"audiobook/internal/services"
	"audiobook/internal/stationid"
)

// ConfigNotFoundError means the catalog has no record for a station.
type ConfigNotFoundError struct {
	Station stationid.ID
	Source  string
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("station %s: no config record in %s", e.Station, e.Source)
}

func (e *ConfigNotFoundError) Is(target error) bool {
	return target == services.ErrConfigNotFound
}

// Loader reads the station catalog once and serves records for the process
// lifetime.
type Loader struct {
	source string
	read   func() ([]byte, error)

	once    sync.Once
	catalog *Catalog
	err     error
}

// NewLoader reads the catalog from path, or the built-in catalog when path is
// empty.
func NewLoader(path string) *Loader {
	if path == "" {
		return NewLoaderFromBytes("built-in catalog", defaultCatalog)
	}
	return &Loader{
		source: path,
		read:   func() ([]byte, error) { return os.ReadFile(path) },
	}
}

// NewLoaderFromBytes serves records from an in-memory catalog document.
func NewLoaderFromBytes(source string, data []byte) *Loader {
	return &Loader{
		source: source,
		read:   func() ([]byte, error) { return data, nil },
	}
}

// Source names where the catalog comes from.
func (l *Loader) Source() string {
	return l.source
}

// Catalog loads the catalog on first use.
func (l *Loader) Catalog() (*Catalog, error) {
	l.once.Do(func() {
		data, err := l.read()
		if err != nil {
			l.err = services.Wrap(services.ErrConfiguration, "", "load catalog", l.source, err)
			return
		}
		cat, err := ParseCatalogBytes(l.source, data)
		if err != nil {
			l.err = services.Wrap(services.ErrConfiguration, "", "parse catalog", "", err)
			return
		}
		l.catalog = cat
	})
	return l.catalog, l.err
}

// Get returns the record for id or a ConfigNotFoundError.
func (l *Loader) Get(id stationid.ID) (*StationConfig, error) {
	cat, err := l.Catalog()
	if err != nil {
		return nil, err
	}
	st, ok := cat.Lookup(id)
	if !ok {
		return nil, &ConfigNotFoundError{Station: id, Source: l.source}
	}
	return st, nil
}
