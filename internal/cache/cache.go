// Package cache keeps the most recently used episode detail records in memory
// so the control point's frequent position polls do not each cost a page fetch.
package cache

import (
	"container/list"
	"sync"

	"overcast-sonos/internal/models"
)

// DefaultCapacity is the number of episodes kept when no capacity is given.
const DefaultCapacity = 5

// Observer receives cache events. All methods are called with the cache lock
// held and must not call back into the cache.
type Observer interface {
	Hit()
	Miss()
	Evict()
}

type nopObserver struct{}

func (nopObserver) Hit()   {}
func (nopObserver) Miss()  {}
func (nopObserver) Evict() {}

// EpisodeCache is a bounded LRU keyed by episode id. The least recently used
// entry sits at the front of the list.
type EpisodeCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element
	observer Observer
}

// New creates an empty cache. Non-positive capacities fall back to
// DefaultCapacity.
func New(capacity int) *EpisodeCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &EpisodeCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
		observer: nopObserver{},
	}
}

// SetObserver installs o; nil restores the no-op observer.
func (c *EpisodeCache) SetObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if o == nil {
		o = nopObserver{}
	}
	c.observer = o
}

// Get returns the cached episode for id. Entries whose duration is unknown are
// dropped and reported as a miss so the caller refetches them.
func (c *EpisodeCache) Get(id string) (models.Episode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[id]
	if !ok {
		c.observer.Miss()
		return models.Episode{}, false
	}

	episode := elem.Value.(models.Episode)
	if !episode.DurationKnown() {
		c.removeElement(elem)
		c.observer.Miss()
		return models.Episode{}, false
	}

	c.order.MoveToBack(elem)
	c.observer.Hit()
	return episode, true
}

// GetWithOffset patches the cached offset for id and returns the updated
// record. The patch applies whether or not the duration is known.
func (c *EpisodeCache) GetWithOffset(id string, offsetMillis int64) (models.Episode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[id]
	if !ok {
		c.observer.Miss()
		return models.Episode{}, false
	}

	episode := elem.Value.(models.Episode)
	episode.OffsetMillis = offsetMillis
	elem.Value = episode
	c.order.MoveToBack(elem)
	c.observer.Hit()
	return episode, true
}

// Put inserts or replaces episode as the most recently used entry and evicts
// from the least recently used end until the cache is within capacity.
func (c *EpisodeCache) Put(episode models.Episode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[episode.ID]; ok {
		elem.Value = episode
		c.order.MoveToBack(elem)
	} else {
		c.entries[episode.ID] = c.order.PushBack(episode)
	}

	for c.order.Len() > c.capacity {
		c.removeElement(c.order.Front())
		c.observer.Evict()
	}
}

// Remove deletes id from the cache if present.
func (c *EpisodeCache) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[id]; ok {
		c.removeElement(elem)
	}
}

// Len returns the number of cached episodes.
func (c *EpisodeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Keys returns the cached ids from least to most recently used.
func (c *EpisodeCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.order.Len())
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(models.Episode).ID)
	}
	return keys
}

func (c *EpisodeCache) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.entries, elem.Value.(models.Episode).ID)
}
