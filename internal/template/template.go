// Package template resolves named prompt templates from locale sets.
//
// Templates live in YAML files at locales/<lang>/<group>.yaml, each a flat
// mapping of key to template text. Placeholders are written $name or
// ${name}; $$ renders a literal dollar sign.
package template

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed locales
var embedded embed.FS

var placeholder = regexp.MustCompile(`\$(?:(\$)|\{([A-Za-z_][A-Za-z0-9_]*)\}|([A-Za-z_][A-Za-z0-9_]*))`)

// Parser resolves templates against a primary locale, falling back to a
// default locale.
type Parser struct {
	mu          sync.RWMutex
	locales     map[string]map[string]map[string]string
	primaryLang string
	defaultLang string
}

// NewParser loads the built-in locales.
func NewParser(primaryLang, defaultLang string) (*Parser, error) {
	return New(embedded, primaryLang, defaultLang)
}

// New loads every locales/<lang>/<group>.yaml file found in fsys.
func New(fsys fs.FS, primaryLang, defaultLang string) (*Parser, error) {
	files, err := fs.Glob(fsys, "locales/*/*.yaml")
	if err != nil {
		return nil, err
	}
	locales := map[string]map[string]map[string]string{}
	for _, file := range files {
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, err
		}
		var group map[string]string
		if err := yaml.Unmarshal(data, &group); err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		lang := path.Base(path.Dir(file))
		name := strings.TrimSuffix(path.Base(file), ".yaml")
		if locales[lang] == nil {
			locales[lang] = map[string]map[string]string{}
		}
		locales[lang][name] = group
	}
	p := &Parser{locales: locales, defaultLang: defaultLang, primaryLang: defaultLang}
	p.SetLanguage(primaryLang)
	return p, nil
}

// SetLanguage switches the primary locale. Unknown locales are ignored and
// reported with false.
func (p *Parser) SetLanguage(lang string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.locales[lang]; !ok {
		return false
	}
	p.primaryLang = lang
	return true
}

// Language returns the current primary locale.
func (p *Parser) Language() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.primaryLang
}

// Get renders group/key with vars. It reports false when neither the
// primary nor the default locale defines the template.
func (p *Parser) Get(group, key string, vars map[string]any) (string, bool) {
	p.mu.RLock()
	langs := []string{p.primaryLang, p.defaultLang}
	p.mu.RUnlock()

	for _, lang := range langs {
		if tmpl, ok := p.locales[lang][group][key]; ok {
			return Render(tmpl, vars), true
		}
	}
	return "", false
}

// Render substitutes placeholders from vars. Unknown placeholders are left
// as written.
func Render(tmpl string, vars map[string]any) string {
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		sub := placeholder.FindStringSubmatch(m)
		if sub[1] != "" {
			return "$"
		}
		name := sub[2] + sub[3]
		v, ok := vars[name]
		if !ok {
			return m
		}
		return fmt.Sprint(v)
	})
}
