package prompt

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	yaml "gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultFiles embed.FS

// Template keys, as "section.name" in prompts.yaml.
const (
	KeyDefaultPersona    = "system.default_persona"
	KeyUserBody          = "user.body"
	KeyFeedbackMalformed = "feedback.malformed"
	KeyFeedbackIllegal   = "feedback.illegal"
	KeyMovesSample       = "feedback.sample"
	KeyMovesFull         = "feedback.full"
)

// requiredTemplates must all be present and non-empty after overrides.
var requiredTemplates = []string{
	KeyDefaultPersona,
	KeyUserBody,
	KeyFeedbackMalformed,
	KeyFeedbackIllegal,
	KeyMovesSample,
	KeyMovesFull,
}

// Catalog holds the parsed prompt templates. It is immutable after
// NewCatalog; templates render with missingkey=error.
type Catalog struct {
	templates map[string]*template.Template
}

// NewCatalog loads the embedded prompts, then applies YAML overrides from
// dir. Every required template is parsed up front so a broken override fails
// at startup rather than on the first move.
func NewCatalog(overrideDir string) (*Catalog, error) {
	raw, err := defaultFiles.ReadFile("prompts.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded prompts: %w", err)
	}
	texts, err := decodePromptFile(raw)
	if err != nil {
		return nil, fmt.Errorf("parse embedded prompts: %w", err)
	}
	if strings.TrimSpace(overrideDir) != "" {
		if err := applyOverrides(texts, overrideDir); err != nil {
			return nil, err
		}
	}

	c := &Catalog{templates: make(map[string]*template.Template, len(requiredTemplates))}
	for _, key := range requiredTemplates {
		text := texts[key]
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("prompt template %s is missing or empty", key)
		}
		tpl, err := template.New(key).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", key, err)
		}
		c.templates[key] = tpl
	}
	return c, nil
}

// decodePromptFile reads the two-level section/name layout of prompts.yaml.
func decodePromptFile(raw []byte) (map[string]string, error) {
	var sections map[string]map[string]string
	if err := yaml.Unmarshal(raw, &sections); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for section, names := range sections {
		for name, text := range names {
			out[section+"."+name] = text
		}
	}
	return out, nil
}

// applyOverrides merges every *.yaml file of dir into texts. A key may be
// overridden by one file only and must name a known template.
func applyOverrides(texts map[string]string, dir string) error {
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("read prompt dir: %w", err)
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.y*ml"))
	if err != nil {
		return fmt.Errorf("list prompt dir: %w", err)
	}
	sort.Strings(files)

	from := make(map[string]string)
	for _, path := range files {
		name := filepath.Base(path)
		if ext := strings.ToLower(filepath.Ext(name)); ext != ".yaml" && ext != ".yml" {
			continue
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		overrides, err := decodePromptFile(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		for key, text := range overrides {
			if _, known := texts[key]; !known {
				return fmt.Errorf("unknown prompt key %q in %s", key, name)
			}
			if prev, dup := from[key]; dup {
				return fmt.Errorf("prompt key %q overridden by both %s and %s", key, prev, name)
			}
			from[key] = name
			texts[key] = text
		}
	}
	return nil
}

// Render executes the template stored under key.
func (c *Catalog) Render(key string, data any) (string, error) {
	tpl, ok := c.templates[key]
	if !ok {
		return "", fmt.Errorf("template not found: %s", key)
	}
	var b strings.Builder
	if err := tpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s: %w", key, err)
	}
	return b.String(), nil
}
