package policy

import "github.com/dgallion1/xmlgest/internal/doctree"

// Builder accumulates rules in registration order.
//
//	t, err := policy.NewBuilder().
//		DefaultElement(policy.Drop).
//		Allow("root", "child").
//		DropGlobalAttribute("style").
//		Build()
type Builder struct {
	cfg Config
}

// NewBuilder starts from the pass-everything, case-insensitive defaults.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) DefaultElement(a ElementAction) *Builder {
	b.cfg.DefaultElementAction = a
	return b
}

func (b *Builder) DefaultAttribute(a AttributeAction) *Builder {
	b.cfg.DefaultAttributeAction = a
	return b
}

// CaseSensitive switches to exact local-name comparison.
func (b *Builder) CaseSensitive() *Builder {
	b.cfg.CaseSensitive = true
	return b
}

// Element registers a rule for a qualified element name.
func (b *Builder) Element(name doctree.QName, a ElementAction) *Builder {
	b.cfg.ElementRules = append(b.cfg.ElementRules, ElementRule{Name: name, Action: a})
	return b
}

func (b *Builder) elements(a ElementAction, locals []string) *Builder {
	for _, l := range locals {
		b.Element(doctree.Name(l), a)
	}
	return b
}

// Allow, Drop, Prune and Skip register un-namespaced element rules.
func (b *Builder) Allow(locals ...string) *Builder { return b.elements(Pass, locals) }
func (b *Builder) Drop(locals ...string) *Builder  { return b.elements(Drop, locals) }
func (b *Builder) Prune(locals ...string) *Builder { return b.elements(Prune, locals) }
func (b *Builder) Skip(locals ...string) *Builder  { return b.elements(Skip, locals) }

// Attribute registers an arbitrary attribute rule.
func (b *Builder) Attribute(r AttributeRule) *Builder {
	b.cfg.AttributeRules = append(b.cfg.AttributeRules, r)
	return b
}

func (b *Builder) attrs(element string, a AttributeAction, locals []string) *Builder {
	var scope *doctree.QName
	if element != "" {
		q := doctree.Name(element)
		scope = &q
	}
	for _, l := range locals {
		b.Attribute(AttributeRule{Element: scope, Name: doctree.Name(l), Action: a})
	}
	return b
}

// AllowAttribute and DropAttribute register rules local to element.
func (b *Builder) AllowAttribute(element string, attrs ...string) *Builder {
	return b.attrs(element, AttrPass, attrs)
}

func (b *Builder) DropAttribute(element string, attrs ...string) *Builder {
	return b.attrs(element, AttrDrop, attrs)
}

// AllowGlobalAttribute and DropGlobalAttribute register rules for every element.
func (b *Builder) AllowGlobalAttribute(attrs ...string) *Builder {
	return b.attrs("", AttrPass, attrs)
}

func (b *Builder) DropGlobalAttribute(attrs ...string) *Builder {
	return b.attrs("", AttrDrop, attrs)
}

// AttributePattern registers a regular expression over attribute local names.
// An empty element makes the rule global.
func (b *Builder) AttributePattern(element, pattern string, a AttributeAction) *Builder {
	r := AttributeRule{Pattern: pattern, Action: a}
	if element != "" {
		q := doctree.Name(element)
		r.Element = &q
	}
	return b.Attribute(r)
}

// Config returns a copy of the accumulated configuration.
func (b *Builder) Config() Config {
	cfg := b.cfg
	cfg.ElementRules = append([]ElementRule(nil), b.cfg.ElementRules...)
	cfg.AttributeRules = append([]AttributeRule(nil), b.cfg.AttributeRules...)
	return cfg
}

func (b *Builder) Build() (*Table, error) {
	return New(b.Config())
}
