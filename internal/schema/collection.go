// internal/schema/collection.go
package schema

import (
	"time"

	"github.com/vertabase/verta-backend/internal/rules"
)

// CollectionType distinguishes plain data collections from auth-backed and
// view collections.
type CollectionType string

const (
	Base CollectionType = "base"
	Auth CollectionType = "auth"
	View CollectionType = "view"
)

// Op names one gated collection operation, matching the rule slots.
type Op string

const (
	OpList   Op = "list"
	OpView   Op = "view"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Collection is one versioned schema snapshot. Values handed out by the
// registry are never mutated in place; every schema update produces a new
// version, so concurrent readers can keep using the snapshot they resolved.
type Collection struct {
	ID     string
	Name   string
	Type   CollectionType
	Fields []Field

	// Rule slots hold the persisted rule text. nil means "administrators
	// only"; the empty string means "always allow".
	ListRule   *string
	ViewRule   *string
	CreateRule *string
	UpdateRule *string
	DeleteRule *string

	System    bool
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time

	compiled map[Op]*rules.Rule
}

// RuleSet groups the five textual rule slots the way API payloads carry them.
type RuleSet struct {
	List   *string
	View   *string
	Create *string
	Update *string
	Delete *string
}

// Rule returns the compiled rule for an operation, or nil when the slot is
// null (admin only).
func (c *Collection) Rule(op Op) *rules.Rule {
	return c.compiled[op]
}

// ruleText returns the textual slot for an operation.
func (c *Collection) ruleText(op Op) *string {
	switch op {
	case OpList:
		return c.ListRule
	case OpView:
		return c.ViewRule
	case OpCreate:
		return c.CreateRule
	case OpUpdate:
		return c.UpdateRule
	case OpDelete:
		return c.DeleteRule
	}
	return nil
}

// compileRules parses every non-null rule slot. Called whenever a collection
// is defined, updated, or loaded; a parse error fails the whole operation.
func (c *Collection) compileRules() error {
	c.compiled = make(map[Op]*rules.Rule, 5)
	for _, op := range []Op{OpList, OpView, OpCreate, OpUpdate, OpDelete} {
		text := c.ruleText(op)
		if text == nil {
			continue
		}
		rule, err := rules.Compile(*text)
		if err != nil {
			return newSchemaError("invalid %s rule: %v", op, err)
		}
		c.compiled[op] = rule
	}
	return nil
}
