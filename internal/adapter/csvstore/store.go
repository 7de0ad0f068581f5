package csvstore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/domain"
)

// Store implements pipeline.TableStore over a directory of CSV files. Each
// table is <dir>/<name>.csv unless an explicit path is configured for it.
type Store struct {
	dir    string
	paths  map[string]string
	logger *slog.Logger
}

// New creates a Store rooted at dir. paths overrides the location of
// individual tables, typically the raw inputs.
func New(dir string, paths map[string]string, logger *slog.Logger) *Store {
	return &Store{dir: dir, paths: paths, logger: logger}
}

// Path returns the file backing a table.
func (s *Store) Path(name string) string {
	if p, ok := s.paths[name]; ok && p != "" {
		return p
	}
	return filepath.Join(s.dir, name+".csv")
}

// Read loads a table. The first record is the header. A missing file is
// reported as *domain.MissingInputError.
func (s *Store) Read(ctx context.Context, name string) (domain.Table, error) {
	if err := ctx.Err(); err != nil {
		return domain.Table{}, err
	}
	path := s.Path(name)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.Table{}, &domain.MissingInputError{Name: name, Path: path}
		}
		return domain.Table{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	t, err := decode(name, f)
	if err != nil {
		return domain.Table{}, fmt.Errorf("read %s: %w", path, err)
	}
	s.logger.Debug("table read", "table", name, "path", path, "rows", t.Len())
	return t, nil
}

func decode(name string, r io.Reader) (domain.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Table{}, errors.New("empty file, expected a header row")
		}
		return domain.Table{}, err
	}
	t := domain.Table{Name: name, Columns: header}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.Table{}, err
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// Write replaces a table's file. The content goes to a temporary file in the
// same directory first, so a failed write leaves no partial file behind.
func (s *Store) Write(ctx context.Context, t domain.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := s.Path(t.Name)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := encode(tmp, t); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	s.logger.Info("table written", "table", t.Name, "path", path, "rows", t.Len())
	return nil
}

func encode(w io.Writer, t domain.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// Remove deletes a table's file. Removing an absent table is not an error.
func (s *Store) Remove(_ context.Context, name string) error {
	path := s.Path(name)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	s.logger.Debug("table removed", "table", name, "path", path)
	return nil
}
