package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mmynk/groupledger/internal/id"
	"github.com/mmynk/groupledger/internal/models"
)

var _ Trail = (*FileTrail)(nil)

// FileTrail stores one JSON-lines file per group under dir.
// There is no rotation or compaction.
type FileTrail struct {
	dir string
	now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileTrail creates dir if needed and returns a trail rooted there.
func NewFileTrail(dir string) (*FileTrail, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	return &FileTrail{
		dir:   dir,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Append writes one line to the group's file.
func (t *FileTrail) Append(_ context.Context, groupID, message string) error {
	path, err := t.path(groupID)
	if err != nil {
		return err
	}

	lock := t.lock(groupID)
	lock.Lock()
	defer lock.Unlock()

	line, err := json.Marshal(models.AuditEntry{
		Timestamp: t.now().UTC(),
		GroupID:   groupID,
		Message:   message,
	})
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return f.Close()
}

// Read returns the group's entries, or an empty slice if the file does not exist.
func (t *FileTrail) Read(_ context.Context, groupID string) ([]models.AuditEntry, error) {
	path, err := t.path(groupID)
	if err != nil {
		return nil, err
	}

	lock := t.lock(groupID)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.AuditEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	entries := []models.AuditEntry{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e models.AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("failed to decode audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	return entries, nil
}

// path maps a group ID to its file. Only well-formed group IDs are accepted,
// so the result always stays inside dir.
func (t *FileTrail) path(groupID string) (string, error) {
	if err := id.Validate(groupID, id.PrefixGroup); err != nil {
		return "", fmt.Errorf("%w: group id: %v", models.ErrInvalidInput, err)
	}
	return filepath.Join(t.dir, groupID+".log"), nil
}

func (t *FileTrail) lock(groupID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[groupID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[groupID] = l
	}
	return l
}
