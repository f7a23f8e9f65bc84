package templates

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// YAMLFileProvider reads templates from a YAML file. Two layouts are accepted:
//
//	templates:
//	  - id: pirate
//	    text: You are a pirate.
//
// or a plain map from id to text:
//
//	pirate: You are a pirate.
type YAMLFileProvider struct {
	path string
	*MemoryProvider
}

var _ Provider = (*YAMLFileProvider)(nil)

type yamlTemplateDocument struct {
	Templates []*Template `yaml:"templates"`
}

func NewYAMLFileProvider(path string) (*YAMLFileProvider, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read templates from %s", path)
	}
	templates, err := DecodeYAMLTemplates(b)
	if err != nil {
		return nil, errors.Wrapf(err, "could not parse templates in %s", path)
	}
	return &YAMLFileProvider{
		path:           path,
		MemoryProvider: NewMemoryProvider(templates...),
	}, nil
}

func (p *YAMLFileProvider) Path() string {
	return p.path
}

func DecodeYAMLTemplates(b []byte) ([]*Template, error) {
	if strings.TrimSpace(string(b)) == "" {
		return nil, nil
	}

	var doc yamlTemplateDocument
	if err := yaml.Unmarshal(b, &doc); err == nil && doc.Templates != nil {
		for i, t := range doc.Templates {
			if t == nil || strings.TrimSpace(t.ID) == "" {
				return nil, errors.Errorf("template %d has no id", i)
			}
		}
		return doc.Templates, nil
	}

	var flat map[string]string
	if err := yaml.Unmarshal(b, &flat); err != nil {
		return nil, errors.Wrap(err, "expected a templates list or an id to text map")
	}
	ret := make([]*Template, 0, len(flat))
	for id, text := range flat {
		ret = append(ret, &Template{ID: id, Name: id, Text: text})
	}
	return ret, nil
}
