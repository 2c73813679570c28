// Package roster tracks the identifiers the scheduler may talk to and
// welcomes newly added ones.
package roster

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/wolfman30/callback-scheduler/internal/messaging"
	"github.com/wolfman30/callback-scheduler/pkg/logging"
)

// Roster is the set of identifiers loaded from a JSON file. Until the file
// exists the roster is open and Contains admits everyone.
type Roster struct {
	path   string
	logger *logging.Logger

	mu      sync.RWMutex
	present bool
	ids     map[string]struct{}
}

// New builds a roster for path. Call Reload to read it.
func New(path string, logger *logging.Logger) *Roster {
	if logger == nil {
		logger = logging.Default()
	}
	return &Roster{path: path, logger: logger, ids: map[string]struct{}{}}
}

// Path returns the roster file location.
func (r *Roster) Path() string { return r.path }

// Contains reports whether id may converse with the scheduler.
func (r *Roster) Contains(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.present {
		return true
	}
	_, ok := r.ids[messaging.NormalizeIdentifier(id)]
	return ok
}

// Identifiers returns the current members in order.
func (r *Roster) Identifiers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.ids))
	for id := range r.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Reload rereads the file and returns identifiers that were not present in
// the previous load. Removed identifiers are simply dropped. A missing file
// leaves the roster open; a malformed one keeps the previous contents.
func (r *Roster) Reload() ([]string, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		r.logger.Warn("roster: file not found, admitting all identifiers", "path", r.path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("roster: read %s: %w", r.path, err)
	}
	list, err := Parse(data)
	if err != nil {
		return nil, err
	}

	next := make(map[string]struct{}, len(list))
	for _, id := range list {
		next[id] = struct{}{}
	}

	r.mu.Lock()
	var added []string
	for id := range next {
		if _, ok := r.ids[id]; !ok {
			added = append(added, id)
		}
	}
	removed := 0
	for id := range r.ids {
		if _, ok := next[id]; !ok {
			removed++
		}
	}
	r.ids = next
	r.present = true
	r.mu.Unlock()

	sort.Strings(added)
	r.logger.Info("roster: reloaded", "members", len(next), "added", len(added), "removed", removed)
	return added, nil
}

// Parse accepts either a JSON array of identifiers or an object with an
// "identifiers" array. Blank entries are dropped and the rest normalized.
func Parse(data []byte) ([]string, error) {
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		var doc struct {
			Identifiers []string `json:"identifiers"`
		}
		if err2 := json.Unmarshal(data, &doc); err2 != nil {
			return nil, fmt.Errorf("roster: parse: %w", err)
		}
		list = doc.Identifiers
	}
	out := make([]string, 0, len(list))
	for _, raw := range list {
		if id := messaging.NormalizeIdentifier(raw); id != "" {
			out = append(out, id)
		}
	}
	return out, nil
}
