package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrInvalidWorkflowID is returned for ids that cannot name a file.
var ErrInvalidWorkflowID = errors.New("invalid workflow id")

// FileRepository persists workflow states as <root>/workflows/<id>.json.
type FileRepository struct {
	dir string
}

// NewFileRepository creates a repository rooted at root.
func NewFileRepository(root string) *FileRepository {
	return &FileRepository{dir: filepath.Join(root, "workflows")}
}

func (r *FileRepository) path(id string) (string, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidWorkflowID, id)
	}
	return filepath.Join(r.dir, id+".json"), nil
}

// Save writes state, replacing any previous version. The file is swapped
// in by rename, so concurrent readers see the old or new state, never a
// partial one.
func (r *FileRepository) Save(state *State) error {
	path, err := r.path(state.WorkflowID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(r.dir, 0750); err != nil {
		return fmt.Errorf("create workflows dir: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal workflow %s: %w", state.WorkflowID, err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("write workflow %s: %w", state.WorkflowID, err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file beside path and renames it
// over path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Load reads workflow id. A missing file yields nil, nil.
func (r *FileRepository) Load(id string) (*State, error) {
	path, err := r.path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read workflow %s: %w", id, err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal workflow %s: %w", id, err)
	}
	if state.Metadata == nil {
		state.Metadata = map[string]any{}
	}
	return &state, nil
}

// List returns the ids of every persisted workflow, sorted.
func (r *FileRepository) List() ([]string, error) {
	matches, err := fs.Glob(os.DirFS(r.dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, strings.TrimSuffix(m, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes workflow id; it reports whether a file was removed.
func (r *FileRepository) Delete(id string) (bool, error) {
	path, err := r.path(id)
	if err != nil {
		return false, err
	}
	err = os.Remove(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("delete workflow %s: %w", id, err)
}

// RepositoryView reads workflow state straight from a FileRepository, so
// states written by other processes are visible on every call. It serves
// the same read methods as Manager.
type RepositoryView struct {
	repo  *FileRepository
	onErr func(id string, err error)
}

// NewRepositoryView wraps repo. onErr, when non-nil, is told about files
// that could not be read; such workflows are treated as unknown.
func NewRepositoryView(repo *FileRepository, onErr func(id string, err error)) *RepositoryView {
	if onErr == nil {
		onErr = func(string, error) {}
	}
	return &RepositoryView{repo: repo, onErr: onErr}
}

// State loads workflow id.
func (v *RepositoryView) State(id string) (*State, bool) {
	state, err := v.repo.Load(id)
	if err != nil {
		v.onErr(id, err)
		return nil, false
	}
	return state, state != nil
}

// History returns the transitions of workflow id; empty when unknown.
func (v *RepositoryView) History(id string) []Transition {
	state, ok := v.State(id)
	if !ok {
		return []Transition{}
	}
	return state.Transitions
}

// List returns the persisted workflow ids, sorted.
func (v *RepositoryView) List() []string {
	ids, err := v.repo.List()
	if err != nil {
		v.onErr("", err)
		return []string{}
	}
	return ids
}
