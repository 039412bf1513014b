package contextstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const contextFileName = "context.json"

// FileRepository persists context snapshots as indented JSON under
// <root>/context.
type FileRepository struct {
	dir string
}

// NewFileRepository creates a repository rooted at root.
func NewFileRepository(root string) *FileRepository {
	return &FileRepository{dir: filepath.Join(root, "context")}
}

// Path returns the snapshot file path.
func (r *FileRepository) Path() string {
	return filepath.Join(r.dir, contextFileName)
}

// Save writes ctx, replacing any previous snapshot.
func (r *FileRepository) Save(ctx Context) error {
	if err := os.MkdirAll(r.dir, 0750); err != nil {
		return fmt.Errorf("create context dir: %w", err)
	}

	data, err := json.MarshalIndent(ctx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}

	// Write atomically; serve reads the snapshot while runs are live.
	tmpPath := fmt.Sprintf("%s.%d.tmp", r.Path(), os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write context: %w", err)
	}
	if err := os.Rename(tmpPath, r.Path()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename context: %w", err)
	}
	return nil
}

// Load reads the snapshot. A missing file yields an empty context.
func (r *FileRepository) Load() (Context, error) {
	data, err := os.ReadFile(r.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewContext(), nil
		}
		return Context{}, fmt.Errorf("read context: %w", err)
	}

	ctx := NewContext()
	if err := json.Unmarshal(data, &ctx); err != nil {
		return Context{}, fmt.Errorf("unmarshal context: %w", err)
	}
	if ctx.Entries == nil {
		ctx.Entries = []Entry{}
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	return ctx, nil
}

// Delete removes the snapshot; it reports whether a file was removed.
func (r *FileRepository) Delete() (bool, error) {
	err := os.Remove(r.Path())
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("delete context: %w", err)
}
