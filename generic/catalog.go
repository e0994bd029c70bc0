/*
catalog.go - Time-varying price list with as-of lookup

PURPOSE:
  Prices change over time and historical activity must be billed at the
  rate effective on the activity date. PriceCatalog answers "what was the
  price of service S on date D" by picking the entry with the greatest
  effective date that is on or before D.

INVARIANTS:
  - Entries are kept sorted by effective date per service.
  - Equal effective dates keep load order; the last loaded wins.
  - A lookup with no qualifying entry fails with PriceNotFoundError.
    It never defaults to zero (that would under-invoice).
  - Ending dates are ignored.

CONCURRENCY:
  Load replaces the whole index under a write lock. Lookups take a read
  lock, so a catalog can be shared by every pipeline of a run.

USAGE:
  catalog := generic.NewPriceCatalog(entries...)
  price, err := catalog.PriceAsOf("Tipping Truck", date)
*/
package generic

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// PriceCatalog holds price entries indexed by service name.
type PriceCatalog struct {
	mu        sync.RWMutex
	byService map[string][]PriceEntry
}

// NewPriceCatalog builds a catalog and loads entries.
func NewPriceCatalog(entries ...PriceEntry) *PriceCatalog {
	c := &PriceCatalog{byService: make(map[string][]PriceEntry)}
	c.Load(entries)
	return c
}

func serviceKey(service string) string {
	return strings.TrimSpace(service)
}

// Load replaces the catalog content with entries.
func (c *PriceCatalog) Load(entries []PriceEntry) {
	index := make(map[string][]PriceEntry)
	for _, e := range entries {
		k := serviceKey(e.Service)
		index[k] = append(index[k], e)
	}
	for _, list := range index {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Effective.Before(list[j].Effective)
		})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.byService = index
}

// EntryAsOf returns the entry effective on d for service.
func (c *PriceCatalog) EntryAsOf(service string, d civil.Date) (PriceEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	list := c.byService[serviceKey(service)]
	// First entry strictly after d; the one before it is the answer.
	i := sort.Search(len(list), func(i int) bool {
		return list[i].Effective.After(d)
	})
	if i == 0 {
		return PriceEntry{}, &PriceNotFoundError{Service: service, Date: d}
	}
	return list[i-1], nil
}

// PriceAsOf returns the unit price effective on d for service.
func (c *PriceCatalog) PriceAsOf(service string, d civil.Date) (decimal.Decimal, error) {
	e, err := c.EntryAsOf(service, d)
	if err != nil {
		return decimal.Zero, err
	}
	return e.Price, nil
}

// PriceAsOfMulti looks up several services for one date. The map holds every
// price found; the error joins a PriceNotFoundError per missing service.
func (c *PriceCatalog) PriceAsOfMulti(services []string, d civil.Date) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(services))
	var errs []error
	for _, s := range services {
		p, err := c.PriceAsOf(s, d)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[s] = p
	}
	return out, errors.Join(errs...)
}

// Services returns the service names present in the catalog, sorted.
func (c *PriceCatalog) Services() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.byService))
	for s := range c.byService {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// History returns the entries of one service in effective order.
func (c *PriceCatalog) History(service string) []PriceEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := c.byService[serviceKey(service)]
	out := make([]PriceEntry, len(list))
	copy(out, list)
	return out
}

// Len returns the number of entries.
func (c *PriceCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, list := range c.byService {
		n += len(list)
	}
	return n
}
