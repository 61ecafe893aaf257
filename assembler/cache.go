package assembler

import (
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/meenmo/fxstruct/structure"
)

// NewLegCache returns a leg-price cache. A non-positive ttl keeps entries until flushed.
func NewLegCache(ttl, cleanup time.Duration) *cache.Cache {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return cache.New(ttl, cleanup)
}

// CacheFlusher empties a leg cache whenever a structure it watches changes.
type CacheFlusher struct {
	Cache *cache.Cache
}

var _ structure.Listener = (*CacheFlusher)(nil)

func (f *CacheFlusher) StructureChanged(string) {
	if f.Cache != nil {
		f.Cache.Flush()
	}
}
