package env

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"text/template"
)

type Map map[string]string

// New returns a pointer to Env with both maps initialized.
func New() *Env {
	return &Env{Global: Map{}, Local: Map{}}
}

// Env is the run context of one action execution:
// - Global: variables from config and the host (apply to the whole run)
// - Local: values published by the action during the run
// Lookup and rendering give precedence to Local over Global.
// Zero values (nil maps) are handled gracefully.
type Env struct {
	mu     sync.RWMutex
	Global Map
	Local  Map
}

// Get implements the run context read side. Local wins over Global.
func (e *Env) Get(key string) (string, bool) {
	return e.Lookup(key)
}

// Set publishes a run-scoped value into Local.
func (e *Env) Set(key, value string) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Local == nil {
		e.Local = Map{}
	}
	e.Local[key] = value
}

// SetGlobal sets a config-level value.
func (e *Env) SetGlobal(key, value string) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Global == nil {
		e.Global = Map{}
	}
	e.Global[key] = value
}

// Lookup searches Local first, then Global.
func (e *Env) Lookup(key string) (string, bool) {
	if e == nil {
		return "", false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if v, ok := e.Local[key]; ok {
		return v, true
	}
	if v, ok := e.Global[key]; ok {
		return v, true
	}
	return "", false
}

// Published returns a copy of Local, sorted keys first for stable output.
func (e *Env) Published() (Map, []string) {
	if e == nil {
		return Map{}, nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(Map, len(e.Local))
	keys := make([]string, 0, len(e.Local))
	for k, v := range e.Local {
		out[k] = v
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return out, keys
}

func (e *Env) merged() map[string]string {
	m := map[string]string{}
	if e == nil {
		return m
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	for k, v := range e.Global {
		m[k] = v
	}
	for k, v := range e.Local {
		m[k] = v
	}
	return m
}

// dataForTemplate exposes values both flat ({{.token}}) and grouped ({{.env.token}}).
func (e *Env) dataForTemplate() map[string]interface{} {
	merged := e.merged()
	data := make(map[string]interface{}, len(merged)+1)
	for k, v := range merged {
		data[k] = v
	}
	data["env"] = merged
	return data
}

var macroPattern = regexp.MustCompile(`\$\{\s*([A-Za-z_][A-Za-z0-9_.\-]*)\s*\}`)

// HasPlaceholder reports whether s holds a ${name} macro or a Go template action.
func HasPlaceholder(s string) bool {
	return macroPattern.MatchString(s) || strings.Contains(s, "{{")
}

// normalize rewrites ${name} macros into lookup calls so names with dots or dashes work.
func normalize(s string) string {
	return macroPattern.ReplaceAllString(s, `{{lookup "$1"}}`)
}

func (e *Env) funcs() template.FuncMap {
	return template.FuncMap{
		"lookup": func(key string) (string, error) {
			if v, ok := e.Lookup(key); ok {
				return v, nil
			}
			return "", fmt.Errorf("%s is not set", key)
		},
	}
}

// Render renders ${name} macros and {{...}} templates with text/template.
// Missing keys are an error.
func (e *Env) Render(s string) (string, error) {
	if !HasPlaceholder(s) {
		return s, nil
	}
	t, err := template.New("value").Funcs(e.funcs()).Option("missingkey=error").Parse(normalize(s))
	if err != nil {
		return "", fmt.Errorf("parse template %q: %w", s, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, e.dataForTemplate()); err != nil {
		return "", fmt.Errorf("render template %q: %w", s, err)
	}
	return buf.String(), nil
}

// RenderGoTemplate is Render that keeps the original string when rendering fails.
func (e *Env) RenderGoTemplate(s string) string {
	out, err := e.Render(s)
	if err != nil {
		return s
	}
	return out
}
