package change

import (
	"github.com/leodido/go-conventionalcommits"
	"github.com/leodido/go-conventionalcommits/parser"
)

// Conventional is the structured form of a Conventional Commits message.
type Conventional struct {
	Type        string
	Scope       string
	Description string
	Breaking    bool
	Footers     map[string][]string
}

// ParseConventional returns nil when message does not follow the convention.
func ParseConventional(message string) *Conventional {
	m := parser.NewMachine(conventionalcommits.WithTypes(conventionalcommits.TypesConventional))
	msg, err := m.Parse([]byte(message))
	if err != nil || msg == nil || !msg.Ok() {
		return nil
	}
	cc, ok := msg.(*conventionalcommits.ConventionalCommit)
	if !ok {
		return nil
	}
	out := &Conventional{
		Type:        cc.Type,
		Description: cc.Description,
		Breaking:    cc.IsBreakingChange(),
		Footers:     cc.Footers,
	}
	if cc.Scope != nil {
		out.Scope = *cc.Scope
	}
	return out
}
