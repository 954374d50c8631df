package policy

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dgallion1/xmlgest/internal/doctree"
)

type fileElementRule struct {
	Namespace string `yaml:"namespace"`
	Name      string `yaml:"name"`
	Action    string `yaml:"action"`
}

type fileAttributeRule struct {
	Element          string `yaml:"element"`
	ElementNamespace string `yaml:"element_namespace"`
	Namespace        string `yaml:"namespace"`
	Name             string `yaml:"name"`
	Pattern          string `yaml:"pattern"`
	Action           string `yaml:"action"`
}

type filePolicy struct {
	DefaultElementAction   string              `yaml:"default_element_action"`
	DefaultAttributeAction string              `yaml:"default_attribute_action"`
	CaseSensitive          bool                `yaml:"case_sensitive"`
	Elements               []fileElementRule   `yaml:"elements"`
	Attributes             []fileAttributeRule `yaml:"attributes"`
}

// Load reads a YAML policy. Unknown keys are rejected. An empty document
// yields the pass-everything table.
func Load(r io.Reader) (*Table, error) {
	cfg, err := ParseConfig(r)
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

// LoadFile reads a YAML policy from path.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open policy: %w", err)
	}
	defer f.Close()

	t, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", path, err)
	}
	return t, nil
}

// ParseConfig decodes YAML into a Config without compiling it.
func ParseConfig(r io.Reader) (Config, error) {
	var fp filePolicy
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fp); err != nil {
		if errors.Is(err, io.EOF) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	var cfg Config
	var err error
	cfg.CaseSensitive = fp.CaseSensitive
	if fp.DefaultElementAction != "" {
		if cfg.DefaultElementAction, err = ParseElementAction(fp.DefaultElementAction); err != nil {
			return Config{}, fmt.Errorf("default_element_action: %w", err)
		}
	}
	if fp.DefaultAttributeAction != "" {
		if cfg.DefaultAttributeAction, err = ParseAttributeAction(fp.DefaultAttributeAction); err != nil {
			return Config{}, fmt.Errorf("default_attribute_action: %w", err)
		}
	}

	for i, e := range fp.Elements {
		a, err := ParseElementAction(e.Action)
		if err != nil {
			return Config{}, fmt.Errorf("elements[%d]: %w", i, err)
		}
		cfg.ElementRules = append(cfg.ElementRules, ElementRule{
			Name:   doctree.QName{Space: e.Namespace, Local: e.Name},
			Action: a,
		})
	}

	for i, at := range fp.Attributes {
		a, err := ParseAttributeAction(at.Action)
		if err != nil {
			return Config{}, fmt.Errorf("attributes[%d]: %w", i, err)
		}
		r := AttributeRule{
			Name:    doctree.QName{Space: at.Namespace, Local: at.Name},
			Pattern: at.Pattern,
			Action:  a,
		}
		if at.Element != "" {
			r.Element = &doctree.QName{Space: at.ElementNamespace, Local: at.Element}
		}
		cfg.AttributeRules = append(cfg.AttributeRules, r)
	}
	return cfg, nil
}
