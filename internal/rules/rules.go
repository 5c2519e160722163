// internal/rules/rules.go
//
// Package rules implements the access-rule expression language used to gate
// collection operations. A rule is compiled once into an expression tree when
// it is defined; evaluation is a pure tree walk against the request context
// and is safe to run concurrently.
package rules

// Context carries everything a rule can reference. Auth is nil for anonymous
// callers. Data is the payload being written (create/update), nil otherwise.
type Context struct {
	Auth  map[string]any
	Data  map[string]any
	Admin bool
}

// Rule is a compiled access rule. The zero Text / nil root form ("") allows
// every actor.
type Rule struct {
	text string
	root expr
}

// Compile parses a rule expression. The empty string compiles to the
// always-allow rule. Invalid expressions fail here, never at request time.
func Compile(text string) (*Rule, error) {
	if text == "" {
		return &Rule{text: ""}, nil
	}
	root, err := parse(text)
	if err != nil {
		return nil, err
	}
	return &Rule{text: text, root: root}, nil
}

// Text returns the original rule expression.
func (r *Rule) Text() string {
	return r.text
}

// Evaluate walks the expression tree against ctx. The empty rule is true.
func (r *Rule) Evaluate(ctx Context) bool {
	if r.root == nil {
		return true
	}
	return r.root.eval(ctx)
}

// Allow applies the rule-slot semantics: a nil rule means "administrators
// only", administrators always pass, everyone else is decided by the
// compiled expression.
func Allow(r *Rule, ctx Context) bool {
	if ctx.Admin {
		return true
	}
	if r == nil {
		return false
	}
	return r.Evaluate(ctx)
}
