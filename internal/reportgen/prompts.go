package reportgen

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var promptsFS embed.FS

const (
	PromptSectionAnalysis = "section_analysis"
	PromptReportSynthesis = "report_synthesis"
	PromptAnalysis        = "prompt_analysis"
)

type yamlPromptFile struct {
	Version int                       `yaml:"version"`
	Prompts map[string]yamlPromptSpec `yaml:"prompts"`
}

type yamlPromptSpec struct {
	SchemaName string         `yaml:"schema_name"`
	Schema     map[string]any `yaml:"schema"`
	System     string         `yaml:"system"`
	User       string         `yaml:"user"`
}

// Prompt is a compiled prompt: rendered system and user text plus an optional response shape.
type Prompt struct {
	Name   string
	Shape  *Shape
	system *template.Template
	user   *template.Template
}

func (p *Prompt) Render(in any) (CompletionRequest, error) {
	var sys, usr bytes.Buffer
	if err := p.system.Execute(&sys, in); err != nil {
		return CompletionRequest{}, fmt.Errorf("%s system template: %w", p.Name, err)
	}
	if err := p.user.Execute(&usr, in); err != nil {
		return CompletionRequest{}, fmt.Errorf("%s user template: %w", p.Name, err)
	}
	return CompletionRequest{
		System: strings.TrimSpace(sys.String()),
		Prompt: strings.TrimSpace(usr.String()),
		Shape:  p.Shape,
	}, nil
}

type Prompts struct {
	byName map[string]*Prompt
}

// LoadPrompts reads prompt templates from path, or the embedded prompts.yaml when path is empty.
func LoadPrompts(path string) (*Prompts, error) {
	var (
		data []byte
		err  error
	)
	if path = strings.TrimSpace(path); path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = promptsFS.ReadFile("prompts.yaml")
	}
	if err != nil {
		return nil, fmt.Errorf("read prompts: %w", err)
	}

	var file yamlPromptFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	funcs := template.FuncMap{"join": strings.Join}
	out := &Prompts{byName: map[string]*Prompt{}}
	for _, name := range []string{PromptSectionAnalysis, PromptReportSynthesis, PromptAnalysis} {
		spec, ok := file.Prompts[name]
		if !ok {
			return nil, fmt.Errorf("prompts: missing %q", name)
		}
		sysT, err := template.New(name + ".system").Funcs(funcs).Option("missingkey=zero").Parse(spec.System)
		if err != nil {
			return nil, fmt.Errorf("%s system template parse: %w", name, err)
		}
		userT, err := template.New(name + ".user").Funcs(funcs).Option("missingkey=zero").Parse(spec.User)
		if err != nil {
			return nil, fmt.Errorf("%s user template parse: %w", name, err)
		}
		p := &Prompt{Name: name, system: sysT, user: userT}
		if spec.SchemaName != "" {
			if len(spec.Schema) == 0 {
				return nil, fmt.Errorf("%s: schema_name without schema", name)
			}
			p.Shape = &Shape{Name: spec.SchemaName, Schema: spec.Schema}
		}
		out.byName[name] = p
	}
	return out, nil
}

func (p *Prompts) Get(name string) *Prompt {
	return p.byName[name]
}
