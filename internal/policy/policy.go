// Package policy decides, per element and attribute, what survives
// sanitization.
//
// A Table is built once from an ordered rule list and is read-only afterwards;
// one Table may serve any number of concurrent filters.
package policy

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"github.com/dgallion1/xmlgest/internal/doctree"
)

// ElementAction is the decision for an element.
type ElementAction int

const (
	// Pass keeps the element, its allowed attributes and its children.
	Pass ElementAction = iota
	// Drop removes the tags and splices the children into the parent.
	Drop
	// Prune removes the element and its whole subtree.
	Prune
	// Skip behaves like Drop; it exists so configurations can say which they meant.
	Skip
)

func (a ElementAction) String() string {
	switch a {
	case Pass:
		return "pass"
	case Drop:
		return "drop"
	case Prune:
		return "prune"
	case Skip:
		return "skip"
	}
	return fmt.Sprintf("ElementAction(%d)", int(a))
}

// ParseElementAction reads pass, drop, prune or skip (any case).
func ParseElementAction(s string) (ElementAction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pass", "allow", "keep":
		return Pass, nil
	case "drop":
		return Drop, nil
	case "prune":
		return Prune, nil
	case "skip":
		return Skip, nil
	}
	return Pass, fmt.Errorf("%w: unknown element action %q", ErrInvalidRule, s)
}

// AttributeAction is the decision for an attribute.
type AttributeAction int

const (
	AttrPass AttributeAction = iota
	AttrDrop
)

func (a AttributeAction) String() string {
	if a == AttrDrop {
		return "drop"
	}
	return "pass"
}

// ParseAttributeAction reads pass or drop (any case).
func ParseAttributeAction(s string) (AttributeAction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pass", "allow", "keep":
		return AttrPass, nil
	case "drop":
		return AttrDrop, nil
	}
	return AttrPass, fmt.Errorf("%w: unknown attribute action %q", ErrInvalidRule, s)
}

// ErrInvalidRule wraps every rule or configuration problem.
var ErrInvalidRule = errors.New("invalid policy rule")

// ElementRule maps an element name (namespace URI and local name) to an action.
type ElementRule struct {
	Name   doctree.QName
	Action ElementAction
}

// AttributeRule maps an attribute to an action. A nil Element makes the rule
// global. When Pattern is set it is matched against the attribute's local
// name and Name is ignored.
type AttributeRule struct {
	Element *doctree.QName
	Name    doctree.QName
	Pattern string
	Action  AttributeAction
}

// Config is the declarative shape of a policy.
type Config struct {
	DefaultElementAction   ElementAction
	DefaultAttributeAction AttributeAction
	CaseSensitive          bool
	ElementRules           []ElementRule
	AttributeRules         []AttributeRule
}

type attrMatcher struct {
	key    string
	re     *regexp.Regexp
	action AttributeAction
}

// Table answers element and attribute queries. A nil *Table passes everything.
type Table struct {
	defaultElement ElementAction
	defaultAttr    AttributeAction
	caseSensitive  bool
	elements       map[string]ElementAction
	local          map[string][]attrMatcher
	global         []attrMatcher
}

// New compiles cfg. For element rules and within each attribute scope the
// first registered rule for a name wins.
func New(cfg Config) (*Table, error) {
	t := &Table{
		defaultElement: cfg.DefaultElementAction,
		defaultAttr:    cfg.DefaultAttributeAction,
		caseSensitive:  cfg.CaseSensitive,
		elements:       make(map[string]ElementAction, len(cfg.ElementRules)),
		local:          make(map[string][]attrMatcher),
	}
	if err := validElementAction(cfg.DefaultElementAction); err != nil {
		return nil, err
	}
	if cfg.DefaultAttributeAction != AttrPass && cfg.DefaultAttributeAction != AttrDrop {
		return nil, fmt.Errorf("%w: default attribute action %d", ErrInvalidRule, cfg.DefaultAttributeAction)
	}

	for i, r := range cfg.ElementRules {
		if r.Name.Local == "" {
			return nil, fmt.Errorf("%w: element rule %d has no name", ErrInvalidRule, i)
		}
		if err := validElementAction(r.Action); err != nil {
			return nil, fmt.Errorf("element rule %d: %w", i, err)
		}
		k := t.key(r.Name)
		if _, seen := t.elements[k]; !seen {
			t.elements[k] = r.Action
		}
	}

	for i, r := range cfg.AttributeRules {
		m := attrMatcher{action: r.Action}
		if r.Action != AttrPass && r.Action != AttrDrop {
			return nil, fmt.Errorf("%w: attribute rule %d action %d", ErrInvalidRule, i, r.Action)
		}
		switch {
		case r.Pattern != "":
			expr := r.Pattern
			if !t.caseSensitive {
				expr = "(?i)" + expr
			}
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("%w: attribute rule %d pattern: %v", ErrInvalidRule, i, err)
			}
			m.re = re
		case r.Name.Local != "":
			m.key = t.key(r.Name)
		default:
			return nil, fmt.Errorf("%w: attribute rule %d has neither name nor pattern", ErrInvalidRule, i)
		}
		if r.Element == nil {
			t.global = append(t.global, m)
			continue
		}
		if r.Element.Local == "" {
			return nil, fmt.Errorf("%w: attribute rule %d has an empty element scope", ErrInvalidRule, i)
		}
		ek := t.key(*r.Element)
		t.local[ek] = append(t.local[ek], m)
	}
	return t, nil
}

func validElementAction(a ElementAction) error {
	switch a {
	case Pass, Drop, Prune, Skip:
		return nil
	}
	return fmt.Errorf("%w: element action %d", ErrInvalidRule, a)
}

// PassAll returns a table that keeps every element and attribute.
func PassAll() *Table {
	t, _ := New(Config{})
	return t
}

// key returns the Clark form {uri}local, with the local name case-folded
// when matching is case-insensitive. Namespace URIs always compare exactly.
func (t *Table) key(q doctree.QName) string {
	local := q.Local
	if !t.caseSensitive {
		// Casers carry state, so each call gets its own.
		local = cases.Fold().String(local)
	}
	return "{" + q.Space + "}" + local
}

// ElementAction returns the action for an element, or the table default.
func (t *Table) ElementAction(name doctree.QName) ElementAction {
	if t == nil {
		return Pass
	}
	if a, ok := t.elements[t.key(name)]; ok {
		return a
	}
	return t.defaultElement
}

// AttributeAction returns the action for attr on element. Rules scoped to the
// element are consulted before global rules, each tier in registration order.
func (t *Table) AttributeAction(element, attr doctree.QName) AttributeAction {
	if t == nil {
		return AttrPass
	}
	ak := t.key(attr)
	if ms, ok := t.local[t.key(element)]; ok {
		if a, ok := match(ms, ak, attr.Local); ok {
			return a
		}
	}
	if a, ok := match(t.global, ak, attr.Local); ok {
		return a
	}
	return t.defaultAttr
}

func match(ms []attrMatcher, key, local string) (AttributeAction, bool) {
	for _, m := range ms {
		if m.re != nil {
			if m.re.MatchString(local) {
				return m.action, true
			}
			continue
		}
		if m.key == key {
			return m.action, true
		}
	}
	return AttrPass, false
}

// CaseSensitive reports the matching mode.
func (t *Table) CaseSensitive() bool { return t != nil && t.caseSensitive }
