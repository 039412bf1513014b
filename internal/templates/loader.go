package templates

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentflow/internal/core"
	"github.com/fyrsmithlabs/agentflow/internal/logging"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize template watcher")

// Loader loads templates from a default and a custom directory on top of the
// built-ins. Custom templates override defaults, which override built-ins.
type Loader struct {
	dirs     []string
	resolver *Resolver
	logger   *logging.Logger
	onReload func()
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the loader's logger.
func WithLogger(l *logging.Logger) LoaderOption {
	return func(ld *Loader) { ld.logger = l.Named("templates") }
}

// WithReloadHook registers fn to run after every reload triggered by Watch.
func WithReloadHook(fn func()) LoaderOption {
	return func(ld *Loader) { ld.onReload = fn }
}

// NewLoader creates a loader and performs the initial load. Missing
// directories are not an error.
func NewLoader(templatesDir, customDir string, opts ...LoaderOption) (*Loader, error) {
	l := &Loader{resolver: NewResolver(), logger: logging.NewNop()}
	for _, dir := range []string{templatesDir, customDir} {
		if dir != "" {
			l.dirs = append(l.dirs, dir)
		}
	}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.Reload(context.Background()); err != nil {
		return nil, err
	}
	return l, nil
}

// Reload rebuilds the template set from the built-ins and the directories.
// Invalid templates are skipped with a warning.
func (l *Loader) Reload(ctx context.Context) error {
	set := builtins()
	for _, dir := range l.dirs {
		files, err := filepath.Glob(filepath.Join(dir, "*.md"))
		if err != nil {
			return fmt.Errorf("listing templates in %s: %w", dir, err)
		}
		sort.Strings(files)
		for _, file := range files {
			t, err := ParseFile(file)
			if err != nil {
				l.logger.Warn(ctx, "failed to load template", zap.String("file", file), zap.Error(err))
				continue
			}
			if errs := Validate(t); len(errs) > 0 {
				l.logger.Warn(ctx, "skipping invalid template",
					zap.String("file", file), zap.Strings("errors", errs))
				continue
			}
			role, ok := ResolveRole(t.RoleName)
			if !ok {
				l.logger.Warn(ctx, "skipping template with unknown role",
					zap.String("file", file), zap.String("role_name", t.RoleName))
				continue
			}
			set[role] = t
			l.logger.Debug(ctx, "template loaded", zap.String("file", file), zap.String("role", string(role)))
		}
	}
	l.resolver.replace(set)
	return nil
}

// Template returns the current template for role rendered with vars.
func (l *Loader) Template(role core.AgentRole, vars map[string]string) (*Template, error) {
	return l.resolver.Template(role, vars)
}

// Roles lists the roles with a template.
func (l *Loader) Roles() []core.AgentRole {
	return l.resolver.Roles()
}

// ValidateDir validates every template file in the loader's directories,
// keyed by path. Files without problems are omitted.
func (l *Loader) ValidateDir() map[string][]string {
	out := map[string][]string{}
	for _, dir := range l.dirs {
		files, _ := filepath.Glob(filepath.Join(dir, "*.md"))
		for _, file := range files {
			if errs := ValidateFile(file); len(errs) > 0 {
				out[file] = errs
			}
		}
	}
	return out
}

// Watch reloads templates whenever a *.md file in an existing template
// directory is written, created, removed or renamed. It blocks until ctx is
// done.
func (l *Loader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	defer func() { _ = watcher.Close() }()

	watched := 0
	for _, dir := range l.dirs {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
		watched++
	}
	l.logger.Info(ctx, "watching templates", zap.Strings("dirs", l.dirs), zap.Int("watched", watched))

	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&relevant == 0 || !strings.HasSuffix(event.Name, ".md") {
				continue
			}
			if err := l.Reload(ctx); err != nil {
				l.logger.Warn(ctx, "template reload failed", zap.Error(err))
				continue
			}
			l.logger.Info(ctx, "templates reloaded", zap.String("trigger", event.Name), zap.String("op", event.Op.String()))
			if l.onReload != nil {
				l.onReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn(ctx, "template watcher error", zap.Error(err))
		}
	}
}
