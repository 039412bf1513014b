package templates

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/agentflow/internal/core"
)

//go:embed defaults/*.md
var defaultFS embed.FS

var roleSynonyms = map[string]core.AgentRole{
	"product":          core.RoleProductAnalyst,
	"analyst":          core.RoleProductAnalyst,
	"architecture":     core.RoleArchitect,
	"dev":              core.RoleDeveloper,
	"coder":            core.RoleDeveloper,
	"debug":            core.RoleDebugger,
	"reviewer":         core.RoleCodeReviewer,
	"review":           core.RoleCodeReviewer,
	"data":             core.RoleDataScientist,
	"ai":               core.RoleAIEngineer,
	"ml":               core.RoleMLEngineer,
	"machine_learning": core.RoleMLEngineer,
}

// NormalizeRoleName lowercases name and maps spaces and hyphens to
// underscores.
func NormalizeRoleName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(n)
}

// ResolveRole maps a template role name such as "Product Analyst" or
// "reviewer" to an agent role.
func ResolveRole(name string) (core.AgentRole, bool) {
	n := NormalizeRoleName(name)
	if r := core.AgentRole(n); r.Valid() {
		return r, true
	}
	r, ok := roleSynonyms[n]
	return r, ok
}

// Resolver holds one template per role. It is safe for concurrent use.
type Resolver struct {
	mu        sync.RWMutex
	templates map[core.AgentRole]*Template
}

// NewResolver returns a resolver seeded with the built-in templates.
func NewResolver() *Resolver {
	r := &Resolver{templates: make(map[core.AgentRole]*Template, len(core.AllRoles))}
	for role, t := range builtins() {
		r.templates[role] = t
	}
	return r
}

// Register maps t to a role by its role name and stores it, replacing any
// previous template for that role.
func (r *Resolver) Register(t *Template) (core.AgentRole, bool) {
	role, ok := ResolveRole(t.RoleName)
	if !ok {
		return "", false
	}
	r.mu.Lock()
	r.templates[role] = t
	r.mu.Unlock()
	return role, true
}

// Template returns the template for role rendered with vars.
func (r *Resolver) Template(role core.AgentRole, vars map[string]string) (*Template, error) {
	r.mu.RLock()
	t, ok := r.templates[role]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoTemplate, role)
	}
	return t.Render(vars), nil
}

// Roles lists the roles with a template, sorted.
func (r *Resolver) Roles() []core.AgentRole {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roles := make([]core.AgentRole, 0, len(r.templates))
	for role := range r.templates {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

func (r *Resolver) replace(templates map[core.AgentRole]*Template) {
	r.mu.Lock()
	r.templates = templates
	r.mu.Unlock()
}

// builtins parses the embedded defaults. They are part of the binary, so a
// broken one is a programming error.
func builtins() map[core.AgentRole]*Template {
	out := make(map[core.AgentRole]*Template)
	entries, err := fs.Glob(defaultFS, "defaults/*.md")
	if err != nil {
		panic(err)
	}
	for _, name := range entries {
		data, err := defaultFS.ReadFile(name)
		if err != nil {
			panic(err)
		}
		t, err := Parse(string(data))
		if err != nil {
			panic(fmt.Sprintf("templates: %s: %v", name, err))
		}
		role, ok := ResolveRole(t.RoleName)
		if !ok {
			panic(fmt.Sprintf("templates: %s: unknown role %q", name, t.RoleName))
		}
		out[role] = t
	}
	return out
}
