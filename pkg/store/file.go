package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// FileBackend stores records in a single YAML document:
//
//	records:
//	  - id: block_unlock
//	    enabled: true
//	    enforced: true
//	    logged: true
//	    internal_data: {attempts: 3}
//
// Writes replace the file atomically. Internal data is stored as plain YAML
// so the document stays editable by hand.
type FileBackend struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu          sync.Mutex
	lastWritten []byte
}

type fileDocument struct {
	Records []fileRecord `yaml:"records"`
}

type fileRecord struct {
	Record       `yaml:",inline"`
	InternalData any `yaml:"internal_data,omitempty"`
}

// NewFileBackend creates a backend for the YAML document at path. The file
// is created on the first Save.
func NewFileBackend(path string, debounce time.Duration) (*FileBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}
	return &FileBackend{
		path:     filepath.Clean(path),
		debounce: debounce,
		logger:   slog.Default().With("component", "store.file"),
		now:      time.Now,
	}, nil
}

// Path returns the document path.
func (f *FileBackend) Path() string {
	return f.path
}

// Load implements Backend.
func (f *FileBackend) Load(ctx context.Context, id string) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.read()
	if err != nil {
		return nil, NewStorageError("load", id, err)
	}
	rec, ok := records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}

// Save implements Backend.
func (f *FileBackend) Save(ctx context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return NewStorageError("save", "", ErrInvalidRecord)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.read()
	if err != nil {
		return NewStorageError("save", rec.ID, err)
	}

	stored := rec.Clone()
	stored.UpdatedAt = f.now().UTC().Truncate(time.Second)
	records[rec.ID] = stored

	if err := f.write(records); err != nil {
		return NewStorageError("save", rec.ID, err)
	}
	rec.UpdatedAt = stored.UpdatedAt
	return nil
}

// Delete implements Backend.
func (f *FileBackend) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.read()
	if err != nil {
		return NewStorageError("delete", id, err)
	}
	if _, ok := records[id]; !ok {
		return nil
	}
	delete(records, id)

	if err := f.write(records); err != nil {
		return NewStorageError("delete", id, err)
	}
	return nil
}

// List implements Backend.
func (f *FileBackend) List(ctx context.Context) ([]*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.read()
	if err != nil {
		return nil, NewStorageError("list", "", err)
	}
	return sortedRecords(records), nil
}

// Close implements Backend.
func (f *FileBackend) Close() error {
	return nil
}

// read parses the document. A missing file reads as empty.
func (f *FileBackend) read() (map[string]*Record, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]*Record), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.path, err)
	}
	return decodeDocument(data)
}

// write replaces the document atomically.
func (f *FileBackend) write(records map[string]*Record) error {
	data, err := encodeDocument(sortedRecords(records))
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", f.path, err)
	}

	f.lastWritten = data
	return nil
}

// changedExternally reports whether the file differs from the last write
// made through this backend.
func (f *FileBackend) changedExternally() bool {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return true
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return string(data) != string(f.lastWritten)
}

func decodeDocument(data []byte) (map[string]*Record, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	records := make(map[string]*Record, len(doc.Records))
	for i, fr := range doc.Records {
		if fr.ID == "" {
			return nil, fmt.Errorf("record %d: %w: missing id", i, ErrInvalidRecord)
		}
		if _, dup := records[fr.ID]; dup {
			return nil, fmt.Errorf("record %d: %w: duplicate id %q", i, ErrInvalidRecord, fr.ID)
		}

		rec := fr.Record
		if fr.InternalData != nil {
			raw, err := json.Marshal(fr.InternalData)
			if err != nil {
				return nil, fmt.Errorf("record %s: internal data: %w", fr.ID, err)
			}
			rec.InternalData = raw
		}
		records[fr.ID] = &rec
	}
	return records, nil
}

func encodeDocument(records []*Record) ([]byte, error) {
	doc := fileDocument{Records: make([]fileRecord, 0, len(records))}
	for _, rec := range records {
		fr := fileRecord{Record: *rec}
		if len(rec.InternalData) > 0 {
			if err := json.Unmarshal(rec.InternalData, &fr.InternalData); err != nil {
				return nil, fmt.Errorf("record %s: internal data: %w", rec.ID, err)
			}
		}
		doc.Records = append(doc.Records, fr)
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	return data, nil
}

func sortedRecords(records map[string]*Record) []*Record {
	out := make([]*Record, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
