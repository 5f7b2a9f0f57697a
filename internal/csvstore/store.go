// Package csvstore persists the value and quantity snapshot tables as a pair
// of CSV files sharing one date axis.
package csvstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"stockhistory/internal/core"
)

var (
	// ErrIncompletePair means only one of the two files exists.
	ErrIncompletePair = errors.New("snapshot file pair is incomplete")
	// ErrMismatchedPair means both files exist but their date axes differ.
	ErrMismatchedPair = errors.New("snapshot file pair has mismatched dates")
)

// FileStore reads and writes the snapshot file pair in one directory.
type FileStore struct {
	dir          string
	valueFile    string
	quantityFile string
}

func NewFileStore(dir, valueFile, quantityFile string) *FileStore {
	return &FileStore{dir: dir, valueFile: valueFile, quantityFile: quantityFile}
}

func (s *FileStore) ValuePath() string    { return filepath.Join(s.dir, s.valueFile) }
func (s *FileStore) QuantityPath() string { return filepath.Join(s.dir, s.quantityFile) }

// Exists reports whether persisted state exists. Exactly one file present is
// reported as ErrIncompletePair.
func (s *FileStore) Exists() (bool, error) {
	valueOK, err := fileExists(s.ValuePath())
	if err != nil {
		return false, err
	}
	quantityOK, err := fileExists(s.QuantityPath())
	if err != nil {
		return false, err
	}

	switch {
	case valueOK && quantityOK:
		return true, nil
	case !valueOK && !quantityOK:
		return false, nil
	case valueOK:
		return false, fmt.Errorf("%w: %s is missing", ErrIncompletePair, s.QuantityPath())
	default:
		return false, fmt.Errorf("%w: %s is missing", ErrIncompletePair, s.ValuePath())
	}
}

// Load reads both tables.
func (s *FileStore) Load() (value, quantity core.Table, err error) {
	if value, err = readTable(s.ValuePath()); err != nil {
		return core.Table{}, core.Table{}, err
	}
	if quantity, err = readTable(s.QuantityPath()); err != nil {
		return core.Table{}, core.Table{}, err
	}
	if !core.SameDates(value, quantity) {
		return core.Table{}, core.Table{}, fmt.Errorf("%w: %s has %d rows, %s has %d rows",
			ErrMismatchedPair, s.valueFile, value.Len(), s.quantityFile, quantity.Len())
	}
	return value, quantity, nil
}

// Save replaces both files. Both tables are fully written to temporary files
// next to the targets before either target is renamed, so an interrupted
// save leaves the previous pair in place.
func (s *FileStore) Save(value, quantity core.Table) error {
	if !core.SameDates(value, quantity) {
		return fmt.Errorf("%w: refusing to save", ErrMismatchedPair)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	valueTmp, err := writeTemp(s.dir, s.valueFile, value)
	if err != nil {
		return fmt.Errorf("write %s: %w", s.valueFile, err)
	}
	quantityTmp, err := writeTemp(s.dir, s.quantityFile, quantity)
	if err != nil {
		_ = os.Remove(valueTmp)
		return fmt.Errorf("write %s: %w", s.quantityFile, err)
	}

	if err := os.Rename(quantityTmp, s.QuantityPath()); err != nil {
		_ = os.Remove(valueTmp)
		_ = os.Remove(quantityTmp)
		return fmt.Errorf("replace %s: %w", s.quantityFile, err)
	}
	if err := os.Rename(valueTmp, s.ValuePath()); err != nil {
		_ = os.Remove(valueTmp)
		return fmt.Errorf("replace %s: %w", s.valueFile, err)
	}
	return nil
}

func readTable(path string) (core.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.Table{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	t, err := Decode(f)
	if err != nil {
		return core.Table{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return t, nil
}

func writeTemp(dir, name string, t core.Table) (string, error) {
	f, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return "", err
	}
	path := f.Name()

	if err := Encode(f, t); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	if err := os.Chmod(path, 0o644); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("%s is a directory", path)
	}
	return true, nil
}
