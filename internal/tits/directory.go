package tits

import (
	"sort"
	"sync"
)

// Entry is one trigger-name-to-identifier mapping known to the directory.
type Entry struct {
	Name string
	ID   string
}

// Directory maps trigger names to the opaque identifiers the overlay
// application assigns them. Entries are added for the lifetime of one overlay
// connection and the directory is rebuilt from scratch on each reconnect.
//
// The directory is touched by both the session event flow and the operator
// console, which run on separate goroutines, so access is mutex-guarded.
type Directory struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewDirectory creates an empty Directory.
func NewDirectory() *Directory {
	return &Directory{entries: make(map[string]string)}
}

// Put inserts or overwrites the entry for the given trigger name.
//
// Precondition: name must be non-empty.
func (d *Directory) Put(name, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[name] = id
}

// Lookup returns the identifier for the given trigger name.
//
// Postcondition: Returns (id, true) if an entry exists, or ("", false).
func (d *Directory) Lookup(name string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.entries[name]
	return id, ok
}

// Len returns the number of entries.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Entries returns all entries sorted by trigger name for stable display.
func (d *Directory) Entries() []Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]Entry, 0, len(d.entries))
	for name, id := range d.entries {
		result = append(result, Entry{Name: name, ID: id})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Reset removes every entry, preparing the directory for a fresh connection.
func (d *Directory) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = make(map[string]string)
}
