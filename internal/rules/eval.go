// internal/rules/eval.go
package rules

import (
	"fmt"
	"strings"
)

// expr is a node of the compiled rule tree. eval must be pure.
type expr interface {
	eval(ctx Context) bool
}

// operand is the leaf side of a comparison: a literal or a context path.
type operand interface {
	resolve(ctx Context) any
}

type andExpr struct {
	left, right expr
}

func (e *andExpr) eval(ctx Context) bool {
	return e.left.eval(ctx) && e.right.eval(ctx)
}

type orExpr struct {
	left, right expr
}

func (e *orExpr) eval(ctx Context) bool {
	return e.left.eval(ctx) || e.right.eval(ctx)
}

type notExpr struct {
	inner expr
}

func (e *notExpr) eval(ctx Context) bool {
	return !e.inner.eval(ctx)
}

type compareExpr struct {
	op          string
	left, right operand
}

func (e *compareExpr) eval(ctx Context) bool {
	return compare(e.op, e.left.resolve(ctx), e.right.resolve(ctx))
}

type literal struct {
	value any
}

func (l literal) resolve(Context) any {
	return l.value
}

// path is a context reference like @request.auth.id. Only the
// @request.auth.* and @request.data.* roots exist; anything else is a
// definition-time error. Unknown segments resolve to nil at evaluation time.
type path struct {
	root     string // "auth" or "data"
	segments []string
}

func newPath(text string) (path, error) {
	parts := strings.Split(text, ".")
	if len(parts) < 3 || parts[0] != "@request" {
		return path{}, fmt.Errorf("unknown context path %q", text)
	}
	if parts[1] != "auth" && parts[1] != "data" {
		return path{}, fmt.Errorf("unknown context path %q", text)
	}
	for _, seg := range parts[2:] {
		if seg == "" {
			return path{}, fmt.Errorf("malformed context path %q", text)
		}
	}
	return path{root: parts[1], segments: parts[2:]}, nil
}

func (p path) resolve(ctx Context) any {
	var cur any
	switch p.root {
	case "auth":
		if ctx.Auth == nil {
			return nil
		}
		cur = ctx.Auth
	case "data":
		if ctx.Data == nil {
			return nil
		}
		cur = ctx.Data
	}
	for _, seg := range p.segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return cur
}

// compare applies a single comparison operator. A null on either side makes
// every comparison false: a rule referencing a missing path can never grant
// access through it.
func compare(op string, left, right any) bool {
	if left == nil || right == nil {
		return false
	}

	if op == "?=" {
		return anyMatch(left, right)
	}

	if lf, rf, ok := asNumbers(left, right); ok {
		switch op {
		case "=":
			return lf == rf
		case "!=":
			return lf != rf
		case ">":
			return lf > rf
		case ">=":
			return lf >= rf
		case "<":
			return lf < rf
		case "<=":
			return lf <= rf
		}
		return false
	}

	if ls, lok := left.(string); lok {
		rs, rok := right.(string)
		if !rok {
			return op == "!="
		}
		switch op {
		case "=":
			return ls == rs
		case "!=":
			return ls != rs
		case ">":
			return ls > rs
		case ">=":
			return ls >= rs
		case "<":
			return ls < rs
		case "<=":
			return ls <= rs
		}
		return false
	}

	if lb, lok := left.(bool); lok {
		rb, rok := right.(bool)
		if !rok {
			return op == "!="
		}
		switch op {
		case "=":
			return lb == rb
		case "!=":
			return lb != rb
		}
		return false
	}

	// Mismatched or unsupported types: only inequality holds.
	return op == "!="
}

// anyMatch implements `?=`: true when any element of a multi-valued side
// equals the other side. Scalars degrade to plain equality.
func anyMatch(left, right any) bool {
	if ls, ok := left.([]any); ok {
		for _, el := range ls {
			if compare("=", el, right) {
				return true
			}
		}
		return false
	}
	if rs, ok := right.([]any); ok {
		for _, el := range rs {
			if compare("=", left, el) {
				return true
			}
		}
		return false
	}
	return compare("=", left, right)
}

func asNumbers(left, right any) (float64, float64, bool) {
	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	return lf, rf, lok && rok
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
