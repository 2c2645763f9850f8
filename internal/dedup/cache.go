// Package dedup suppresses repeated automated messages within a cooldown.
package dedup

import (
	"sync"
	"time"

	"github.com/matheus3301/wppdesk/internal/schedule"
	"github.com/robfig/cron/v3"
)

// Key identifies one suppressible send. SessionID is empty for sends that
// are deduplicated across sessions.
type Key struct {
	Kind      string
	Recipient string
	SessionID string
}

// Cache remembers when each key was last allowed.
type Cache struct {
	mu        sync.Mutex
	entries   map[Key]time.Time
	retention time.Duration
	now       func() time.Time

	cron  *cron.Cron
	sweep cron.EntryID
}

// New creates a cache whose sweep drops entries older than retention.
func New(retention time.Duration) *Cache {
	if retention <= 0 {
		retention = time.Hour
	}
	return &Cache{
		entries:   make(map[Key]time.Time),
		retention: retention,
		now:       time.Now,
	}
}

// Allow reports whether key is outside its cooldown and, if so, records the
// send. Check and record happen under one lock.
func (c *Cache) Allow(key Key, cooldown time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if last, ok := c.entries[key]; ok && now.Sub(last) < cooldown {
		return false
	}
	c.entries[key] = now
	return true
}

// Forget drops key so the next Allow succeeds, for a send that was allowed
// but never delivered.
func (c *Cache) Forget(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Sweep removes entries older than the retention window and returns how
// many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-c.retention)
	n := 0
	for k, t := range c.entries {
		if t.Before(cutoff) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// StartSweep runs Sweep on cr every interval until StopSweep.
func (c *Cache) StartSweep(cr *cron.Cron, interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		c.cron.Remove(c.sweep)
	}
	c.cron = cr
	c.sweep = cr.Schedule(schedule.Every(interval), cron.FuncJob(func() { c.Sweep() }))
}

// StopSweep cancels the scheduled sweep.
func (c *Cache) StopSweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		c.cron.Remove(c.sweep)
		c.cron = nil
	}
}
