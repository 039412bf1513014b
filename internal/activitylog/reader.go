package activitylog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// maxLineSize bounds a single JSONL record; agent outputs can be large.
const maxLineSize = 16 * 1024 * 1024

// ReadFile parses a JSONL activity log. Blank lines are ignored; any
// malformed line fails the whole read.
func ReadFile(path string) ([]Entry, error) {
	var bad error
	entries, err := readEntries(path, func(err error) {
		if bad == nil {
			bad = err
		}
	})
	if err != nil {
		return nil, err
	}
	if bad != nil {
		return nil, bad
	}
	return entries, nil
}

// readEntries parses path, handing each malformed line to onBad and
// skipping it. A line longer than maxLineSize ends the file early and is
// reported the same way. Only a failure to open path is returned.
func readEntries(path string, onBad func(error)) ([]Entry, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from LoadDir or the operator
	if err != nil {
		return nil, fmt.Errorf("open activity log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var entries []Entry
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			onBad(fmt.Errorf("%s:%d: %w", path, lineNo, err))
			continue
		}
		if e.Metadata == nil {
			e.Metadata = map[string]any{}
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		onBad(fmt.Errorf("read activity log %s after line %d: %w", path, lineNo, err))
	}
	return entries, nil
}

// LoadDir reads every log_*.jsonl file in dir, oldest file first. A missing
// directory yields no entries. Malformed lines and unreadable files are
// skipped and passed to onBad, which may be nil; one damaged record does
// not hide the rest of the log.
func LoadDir(dir string, onBad func(error)) ([]Entry, error) {
	if onBad == nil {
		onBad = func(error) {}
	}
	files, err := filepath.Glob(filepath.Join(dir, "log_*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("list activity logs: %w", err)
	}
	// File names embed a sortable timestamp.
	sort.Strings(files)

	var all []Entry
	for _, path := range files {
		entries, err := readEntries(path, onBad)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				onBad(err)
			}
			continue
		}
		all = append(all, entries...)
	}
	return all, nil
}

// DirReader answers queries from the JSONL files in a directory. Files are
// re-read on every call so entries appended by a running workflow show up.
type DirReader struct {
	dir   string
	onErr func(error)
}

// NewDirReader reads logs from dir. onErr, when non-nil, receives skipped
// lines and files as well as load failures; a failed load answers with no
// entries.
func NewDirReader(dir string, onErr func(error)) *DirReader {
	if onErr == nil {
		onErr = func(error) {}
	}
	return &DirReader{dir: dir, onErr: onErr}
}

func (r *DirReader) load() []Entry {
	entries, err := LoadDir(r.dir, r.onErr)
	if err != nil {
		r.onErr(err)
		return nil
	}
	return entries
}

// Entries returns every entry across all files, oldest file first.
func (r *DirReader) Entries() []Entry {
	return r.load()
}

// Query returns the entries matching f.
func (r *DirReader) Query(f Filter) []Entry {
	return Apply(r.load(), f)
}

// SummaryReport aggregates the entries tagged with workflowID.
func (r *DirReader) SummaryReport(workflowID string) Summary {
	return Summarize(r.load(), workflowID)
}
