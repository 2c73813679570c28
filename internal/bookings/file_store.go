package bookings

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/wolfman30/callback-scheduler/internal/fsutil"
	"github.com/wolfman30/callback-scheduler/pkg/logging"
)

// FileStore keeps the booking table as one JSON object on disk, rewritten
// atomically on every Put.
type FileStore struct {
	path   string
	logger *logging.Logger
	mu     sync.Mutex
}

// NewFileStore returns a store backed by path. The file is created on first Put.
func NewFileStore(path string, logger *logging.Logger) *FileStore {
	if path == "" {
		panic("bookings: file store path cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FileStore{path: path, logger: logger}
}

func (s *FileStore) readTable() (map[string]json.RawMessage, error) {
	table := map[string]json.RawMessage{}
	if _, err := fsutil.ReadJSON(s.path, &table); err != nil {
		return nil, fmt.Errorf("bookings: load table: %w", err)
	}
	return table, nil
}

func (s *FileStore) All(_ context.Context) ([]Booking, error) {
	s.mu.Lock()
	table, err := s.readTable()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return decodeTable(table, s.logger), nil
}

func (s *FileStore) Get(_ context.Context, identifier string) (Booking, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	table, err := s.readTable()
	if err != nil {
		return Booking{}, false, err
	}
	raw, ok := table[identifier]
	if !ok {
		return Booking{}, false, nil
	}
	b, err := decodeRecord(identifier, raw)
	if err != nil {
		return Booking{}, false, fmt.Errorf("bookings: decode %s: %w", identifier, err)
	}
	return b, true, nil
}

func (s *FileStore) Put(_ context.Context, b Booking) error {
	if b.Identifier == "" {
		return fmt.Errorf("bookings: identifier is required")
	}
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("bookings: encode %s: %w", b.Identifier, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	table, err := s.readTable()
	if err != nil {
		return err
	}
	table[b.Identifier] = data
	if err := fsutil.WriteJSONAtomic(s.path, table); err != nil {
		return fmt.Errorf("bookings: save table: %w", err)
	}
	return nil
}

func decodeTable[V ~[]byte | ~string](table map[string]V, logger *logging.Logger) []Booking {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Booking, 0, len(keys))
	for _, k := range keys {
		b, err := decodeRecord(k, []byte(table[k]))
		if err != nil {
			logger.Warn("bookings: skipping malformed record", "identifier", k, "error", err)
			continue
		}
		out = append(out, b)
	}
	return out
}
