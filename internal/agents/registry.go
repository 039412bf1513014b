package agents

import (
	"github.com/fyrsmithlabs/agentflow/internal/core"
	"github.com/fyrsmithlabs/agentflow/internal/llm"
	"github.com/fyrsmithlabs/agentflow/internal/templates"
)

type constructor func(Base) Agent

// variants maps roles to their behaviour. Roles without an entry behave as
// developers.
var variants = map[core.AgentRole]constructor{
	core.RoleProductAnalyst: func(b Base) Agent { return &ProductAnalyst{b} },
	core.RoleArchitect:      func(b Base) Agent { return &Architect{b} },
	core.RoleDeveloper:      func(b Base) Agent { return &Developer{b} },
	core.RoleDebugger:       func(b Base) Agent { return &Debugger{b} },
	core.RoleCodeReviewer:   func(b Base) Agent { return &CodeReviewer{b} },
}

// New builds the agent for role. The agent keeps role even when it borrows
// the developer behaviour.
func New(role core.AgentRole, tmpl *templates.Template, provider llm.Provider, opts ...Option) Agent {
	ctor, ok := variants[role]
	if !ok {
		ctor = variants[core.RoleDeveloper]
	}
	return ctor(NewBase(role, tmpl, provider, opts...))
}

// HasVariant reports whether role has dedicated behaviour.
func HasVariant(role core.AgentRole) bool {
	_, ok := variants[role]
	return ok
}
