// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package prompt holds the role-tagged message templates sent to the
// completion API. A template is a fixed message sequence with exactly one
// variable message whose content is the record text being extracted.
//
// Built-in templates are embedded YAML documents; custom templates use the
// same format and are loaded from disk.
package prompt

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/pubmed-extract/pkg/types"
)

//go:embed templates/*.yaml
var builtinFiles embed.FS

// Role tags a message in the conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one rendered, role-tagged message.
type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// MessageSpec is one message of a template. Exactly one spec per template
// has Variable set; its Content is ignored and replaced at render time.
type MessageSpec struct {
	Role     Role   `yaml:"role"`
	Content  string `yaml:"content,omitempty"`
	Variable bool   `yaml:"variable,omitempty"`
}

// Template is a fixed message sequence parameterized by one record field.
type Template struct {
	// Name identifies the template (e.g. "exposures").
	Name string `yaml:"name"`

	// Description is a one-line summary shown by the templates command.
	Description string `yaml:"description"`

	// Input names the record field substituted into the variable message:
	// "text" or "affiliation".
	Input string `yaml:"input"`

	// Messages is the ordered conversation.
	Messages []MessageSpec `yaml:"messages"`

	// Schema is a JSON Schema the parsed response must satisfy. Empty means
	// any JSON object is accepted.
	Schema string `yaml:"schema,omitempty"`

	variable int
}

// Parse decodes and validates a YAML template.
func Parse(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decoding template: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadFile reads a YAML template from disk.
func LoadFile(p string) (*Template, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("reading template %s: %w", p, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", p, err)
	}
	return t, nil
}

func (t *Template) validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("template has no name")
	}
	switch t.Input {
	case types.FieldText, types.FieldAffiliation:
	default:
		return fmt.Errorf("template %s: input must be %q or %q, got %q", t.Name, types.FieldText, types.FieldAffiliation, t.Input)
	}

	t.variable = -1
	for i, m := range t.Messages {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return fmt.Errorf("template %s: message %d has invalid role %q", t.Name, i, m.Role)
		}
		if !m.Variable {
			continue
		}
		if t.variable >= 0 {
			return fmt.Errorf("template %s: messages %d and %d are both variable", t.Name, t.variable, i)
		}
		if m.Role == RoleSystem {
			return fmt.Errorf("template %s: variable message must not be a system message", t.Name)
		}
		t.variable = i
	}
	if t.variable < 0 {
		return fmt.Errorf("template %s: no variable message", t.Name)
	}

	if t.Schema != "" && !json.Valid([]byte(t.Schema)) {
		return fmt.Errorf("template %s: schema is not valid JSON", t.Name)
	}
	return nil
}

// Render returns the message sequence with the variable message set to the
// sanitized text. It never fails.
func (t *Template) Render(text string) []Message {
	msgs := make([]Message, len(t.Messages))
	for i, m := range t.Messages {
		content := m.Content
		if i == t.variable {
			content = Sanitize(text)
		}
		msgs[i] = Message{Role: m.Role, Content: content}
	}
	return msgs
}

// InputOf returns the record field the template consumes and whether it is
// present.
func (t *Template) InputOf(r types.Record) (string, bool) {
	return r.Field(t.Input)
}

// Sanitize drops bytes that do not form valid UTF-8 sequences.
func Sanitize(s string) string {
	return strings.ToValidUTF8(s, "")
}

var (
	builtinOnce sync.Once
	builtins    map[string]*Template
	builtinErr  error
)

func loadBuiltins() {
	builtins = make(map[string]*Template)
	entries, err := builtinFiles.ReadDir("templates")
	if err != nil {
		builtinErr = fmt.Errorf("reading embedded templates: %w", err)
		return
	}
	for _, e := range entries {
		data, err := builtinFiles.ReadFile(path.Join("templates", e.Name()))
		if err != nil {
			builtinErr = fmt.Errorf("reading embedded template %s: %w", e.Name(), err)
			return
		}
		t, err := Parse(data)
		if err != nil {
			builtinErr = fmt.Errorf("embedded template %s: %w", e.Name(), err)
			return
		}
		builtins[t.Name] = t
	}
}

// Builtin returns the embedded template with the given name.
func Builtin(name string) (*Template, error) {
	builtinOnce.Do(loadBuiltins)
	if builtinErr != nil {
		return nil, builtinErr
	}
	t, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown template %q (built-in: %s)", name, strings.Join(Builtins(), ", "))
	}
	return t, nil
}

// Builtins lists the embedded template names in sorted order.
func Builtins() []string {
	builtinOnce.Do(loadBuiltins)
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve returns a built-in template by name, or loads nameOrPath as a
// YAML file when it has a .yaml or .yml extension.
func Resolve(nameOrPath string) (*Template, error) {
	switch filepath.Ext(nameOrPath) {
	case ".yaml", ".yml":
		return LoadFile(nameOrPath)
	}
	return Builtin(nameOrPath)
}
