package insight

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v2"

	"superstore-dashboard/internal/format"
	"superstore-dashboard/internal/models"
)

//go:embed prompts.yaml
var defaultPromptFile []byte

const defaultNoteKey = "default"

// PromptFile is the YAML layout of a prompt set.
type PromptFile struct {
	Preamble string                       `yaml:"preamble"`
	Closing  string                       `yaml:"closing"`
	Filters  string                       `yaml:"filters"`
	Prompts  map[string]string            `yaml:"prompts"`
	Fallback map[string]string            `yaml:"fallback"`
	Notes    map[string]map[string]string `yaml:"notes"`
}

// Prompts holds the parsed model prompts and fallback sentences per kind.
type Prompts struct {
	prompts  map[models.InsightKind]*template.Template
	fallback map[models.InsightKind]*template.Template
	notes    map[string]map[string]string
	preamble string
	closing  string
}

type promptData struct {
	Datum   models.InsightDatum
	Filters *models.FilterState
	KPIs    *models.KPISummary
	Note    string
}

var kinds = []models.InsightKind{models.InsightLocation, models.InsightSegment, models.InsightCategory}

var funcs = template.FuncMap{
	"money": format.Cents,
	"pct":   func(v float64) string { return format.Number(v, 1) },
	"month": format.Month,
	"abs":   math.Abs,
	"status": func(ratio float64) string {
		if ratio > 0 {
			return "profitable"
		}
		return "unprofitable"
	},
	"outlook": Outlook,
}

// Outlook classifies a location's profit ratio for the fallback sentence.
func Outlook(ratio float64) string {
	switch {
	case ratio > 10:
		return "performing exceptionally well"
	case ratio < -10:
		return "requiring immediate attention"
	default:
		return "showing moderate performance"
	}
}

// DefaultPrompts returns the built-in prompt set.
func DefaultPrompts() (*Prompts, error) {
	return LoadPrompts("")
}

// LoadPrompts reads a YAML prompt file over the built-in defaults. Entries
// missing from the file keep their default. An empty path loads only the
// defaults.
func LoadPrompts(path string) (*Prompts, error) {
	var base PromptFile
	if err := yaml.Unmarshal(defaultPromptFile, &base); err != nil {
		return nil, fmt.Errorf("parse default prompts: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read prompts file: %w", err)
		}
		var override PromptFile
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("parse prompts file %s: %w", path, err)
		}
		base.merge(override)
	}

	return base.compile()
}

func (f *PromptFile) merge(o PromptFile) {
	if o.Preamble != "" {
		f.Preamble = o.Preamble
	}
	if o.Closing != "" {
		f.Closing = o.Closing
	}
	if o.Filters != "" {
		f.Filters = o.Filters
	}
	for k, v := range o.Prompts {
		f.Prompts[k] = v
	}
	for k, v := range o.Fallback {
		f.Fallback[k] = v
	}
	for kind, notes := range o.Notes {
		if f.Notes[kind] == nil {
			f.Notes[kind] = make(map[string]string)
		}
		for k, v := range notes {
			f.Notes[kind][k] = v
		}
	}
}

func (f PromptFile) compile() (*Prompts, error) {
	p := &Prompts{
		prompts:  make(map[models.InsightKind]*template.Template, len(kinds)),
		fallback: make(map[models.InsightKind]*template.Template, len(kinds)),
		notes:    f.Notes,
		preamble: strings.TrimSpace(f.Preamble),
		closing:  strings.TrimSpace(f.Closing),
	}

	for _, kind := range kinds {
		body, ok := f.Prompts[string(kind)]
		if !ok {
			return nil, fmt.Errorf("missing prompt for %s", kind)
		}
		t := template.New(string(kind)).Funcs(funcs)
		if _, err := t.New("filters").Parse(f.Filters); err != nil {
			return nil, fmt.Errorf("parse filters block: %w", err)
		}
		if _, err := t.Parse(body); err != nil {
			return nil, fmt.Errorf("parse %s prompt: %w", kind, err)
		}
		p.prompts[kind] = t

		fb, ok := f.Fallback[string(kind)]
		if !ok {
			return nil, fmt.Errorf("missing fallback for %s", kind)
		}
		ft, err := template.New(string(kind)).Funcs(funcs).Parse(fb)
		if err != nil {
			return nil, fmt.Errorf("parse %s fallback: %w", kind, err)
		}
		p.fallback[kind] = ft
	}

	return p, nil
}

// Prompt renders the model prompt for req.
func (p *Prompts) Prompt(req models.InsightRequest) (string, error) {
	t, ok := p.prompts[req.Kind]
	if !ok {
		return "", fmt.Errorf("no prompt for insight type %q", req.Kind)
	}

	var sb strings.Builder
	if err := t.Execute(&sb, p.data(req)); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", req.Kind, err)
	}

	parts := []string{p.preamble, strings.TrimSpace(sb.String()), p.closing}
	return strings.Join(parts, "\n\n"), nil
}

// Fallback renders the deterministic sentence used when no model answers.
func (p *Prompts) Fallback(req models.InsightRequest) (string, error) {
	t, ok := p.fallback[req.Kind]
	if !ok {
		return "", fmt.Errorf("no fallback for insight type %q", req.Kind)
	}

	var sb strings.Builder
	if err := t.Execute(&sb, p.data(req)); err != nil {
		return "", fmt.Errorf("render %s fallback: %w", req.Kind, err)
	}
	return strings.TrimSpace(sb.String()), nil
}

func (p *Prompts) data(req models.InsightRequest) promptData {
	return promptData{
		Datum:   req.Datum,
		Filters: req.Filters,
		KPIs:    req.KPIs,
		Note:    p.note(req),
	}
}

func (p *Prompts) note(req models.InsightRequest) string {
	var label string
	switch req.Kind {
	case models.InsightSegment:
		label = req.Datum.Segment
	case models.InsightCategory:
		label = req.Datum.Category
	default:
		return ""
	}

	notes := p.notes[string(req.Kind)]
	if n, ok := notes[label]; ok {
		return n
	}
	return notes[defaultNoteKey]
}
