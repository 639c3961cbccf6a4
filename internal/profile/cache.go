package profile

import (
	gocache "github.com/patrickmn/go-cache"

	"github.com/duffmetro/metroscope/internal/model"
)

// Key identifies one cached dossier: the system plus the dataset version it
// was generated from. A new upload changes the version, so every old key
// simply becomes unreachable.
type Key struct {
	SystemID       string
	DatasetVersion string
}

func (k Key) String() string {
	return "metroscope:profile:v1:" + k.SystemID + "@" + k.DatasetVersion
}

// Cache holds validated dossiers for the lifetime of one session. Entries
// never expire on their own; the session tears the cache down when it ends.
type Cache struct {
	store *gocache.Cache
}

// NewCache creates an empty session cache.
func NewCache() *Cache {
	return &Cache{store: gocache.New(gocache.NoExpiration, 0)}
}

// Get returns the dossier cached under key, if any. Only fully validated
// dossiers are ever stored, so a hit needs no re-validation.
func (c *Cache) Get(key Key) (*model.Dossier, bool) {
	if v, found := c.store.Get(key.String()); found {
		return v.(*model.Dossier), true
	}
	return nil, false
}

// Put stores a validated dossier, overwriting any previous entry for key.
func (c *Cache) Put(key Key, d *model.Dossier) {
	c.store.Set(key.String(), d, gocache.NoExpiration)
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() {
	c.store.Flush()
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	return c.store.ItemCount()
}
