package vault

import (
	"sort"
	"sync"
)

// Cache is the authoritative in-memory set of decrypted records for one
// session, ordered by title (case-sensitive ascending). Reads return
// copies; only the Service mutates it. Replace swaps the whole content at
// once, so a concurrent reader sees either the old list or the new one,
// never a half-built state.
type Cache struct {
	mu      sync.RWMutex
	byID    map[string]*SecretRecord
	ordered []*SecretRecord
}

func NewCache() *Cache {
	return &Cache{byID: map[string]*SecretRecord{}}
}

func (c *Cache) Replace(records []SecretRecord) {
	byID := make(map[string]*SecretRecord, len(records))
	ordered := make([]*SecretRecord, 0, len(records))
	for i := range records {
		rec := records[i]
		byID[rec.ID] = &rec
		ordered = append(ordered, &rec)
	}
	sortRecords(ordered)

	c.mu.Lock()
	c.byID = byID
	c.ordered = ordered
	c.mu.Unlock()
}

func (c *Cache) Insert(rec SecretRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[rec.ID] = &rec
	c.ordered = append(c.ordered, &rec)
	sortRecords(c.ordered)
}

func (c *Cache) Update(rec SecretRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[rec.ID]; !ok {
		return
	}
	c.byID[rec.ID] = &rec
	for i, r := range c.ordered {
		if r.ID == rec.ID {
			c.ordered[i] = c.byID[rec.ID]
			break
		}
	}
	sortRecords(c.ordered)
}

func (c *Cache) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[id]; !ok {
		return
	}
	delete(c.byID, id)
	for i, r := range c.ordered {
		if r.ID == id {
			c.ordered = append(c.ordered[:i], c.ordered[i+1:]...)
			break
		}
	}
}

func (c *Cache) Get(id string) (SecretRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.byID[id]
	if !ok {
		return SecretRecord{}, false
	}
	return *rec, true
}

func (c *Cache) All() []SecretRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]SecretRecord, 0, len(c.ordered))
	for _, r := range c.ordered {
		out = append(out, *r)
	}
	return out
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ordered)
}

func (c *Cache) Clear() {
	c.mu.Lock()
	c.byID = map[string]*SecretRecord{}
	c.ordered = nil
	c.mu.Unlock()
}

func sortRecords(rs []*SecretRecord) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Title != rs[j].Title {
			return rs[i].Title < rs[j].Title
		}
		return rs[i].ID < rs[j].ID
	})
}
