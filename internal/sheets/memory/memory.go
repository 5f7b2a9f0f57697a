package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"stockhistory/internal/core"
	ports "stockhistory/internal/sheets"
)

var _ ports.TableMirror = (*Store)(nil)

// Store keeps sheets in memory. It backs tests and local runs without a
// spreadsheet.
type Store struct {
	mu     sync.Mutex
	sheets map[string]core.Table
	writes int
}

func New() *Store {
	return &Store{sheets: make(map[string]core.Table)}
}

// WriteTable replaces the named sheet.
func (s *Store) WriteTable(_ context.Context, sheet string, t core.Table) error {
	if sheet == "" {
		return fmt.Errorf("sheet name cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sheets[sheet] = copyTable(t)
	s.writes++
	return nil
}

// ReadTable returns the named sheet, empty when never written.
func (s *Store) ReadTable(_ context.Context, sheet string) (core.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyTable(s.sheets[sheet]), nil
}

// Sheets lists the written sheet names.
func (s *Store) Sheets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.sheets))
	for name := range s.sheets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Writes counts WriteTable calls.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// copyTable copies rows so later writes by the caller do not leak in.
func copyTable(t core.Table) core.Table {
	c, err := t.Select(t.Columns)
	if err != nil {
		return t
	}
	return c
}
