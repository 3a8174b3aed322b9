// Package skills exposes operations as tool definitions that an agent can
// invoke with JSON input.
package skills

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

var (
	ErrMissingName    = errors.New("skill name is required")
	ErrMissingHandler = errors.New("skill handler is required")
	ErrDuplicateSkill = errors.New("skill already registered")
)

// Skill is one invocable operation.
type Skill struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	InputSchema *InputSchema `json:"input_schema"`
	Handler     Handler      `json:"-"`
	Domain      string       `json:"domain,omitempty"`

	InvokeCount int64 `json:"invoke_count"`
}

// InputSchema is the JSON Schema of a skill's input object.
type InputSchema struct {
	Type       string               `json:"type"`
	Properties map[string]*Property `json:"properties,omitempty"`
	Required   []string             `json:"required,omitempty"`
}

type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Items       *Property `json:"items,omitempty"`
	Default     any       `json:"default,omitempty"`
}

type Handler func(ctx context.Context, input json.RawMessage) (any, error)

type Result struct {
	SkillName string `json:"skill_name"`
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Builder assembles a Skill.
type Builder struct {
	skill *Skill
}

func NewSkill(name string) *Builder {
	return &Builder{
		skill: &Skill{
			Name: name,
			InputSchema: &InputSchema{
				Type:       "object",
				Properties: make(map[string]*Property),
			},
		},
	}
}

func (b *Builder) Description(desc string) *Builder {
	b.skill.Description = desc
	return b
}

func (b *Builder) Domain(domain string) *Builder {
	b.skill.Domain = domain
	return b
}

func (b *Builder) param(name string, p *Property, required bool) *Builder {
	b.skill.InputSchema.Properties[name] = p
	if required {
		b.skill.InputSchema.Required = append(b.skill.InputSchema.Required, name)
	}
	return b
}

func (b *Builder) StringParam(name, description string, required bool) *Builder {
	return b.param(name, &Property{Type: "string", Description: description}, required)
}

func (b *Builder) EnumParam(name, description string, values []string, required bool) *Builder {
	return b.param(name, &Property{Type: "string", Description: description, Enum: values}, required)
}

func (b *Builder) IntParam(name, description string, required bool) *Builder {
	return b.param(name, &Property{Type: "integer", Description: description}, required)
}

func (b *Builder) BoolParam(name, description string, required bool) *Builder {
	return b.param(name, &Property{Type: "boolean", Description: description}, required)
}

func (b *Builder) ArrayParam(name, description, itemType string, required bool) *Builder {
	return b.param(name, &Property{Type: "array", Description: description, Items: &Property{Type: itemType}}, required)
}

func (b *Builder) Handler(h Handler) *Builder {
	b.skill.Handler = h
	return b
}

func (b *Builder) Build() *Skill {
	return b.skill
}

// Registry holds skills by name.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]*Skill
}

func NewRegistry() *Registry {
	return &Registry{skills: make(map[string]*Skill)}
}

func (r *Registry) Register(skill *Skill) error {
	if skill.Name == "" {
		return ErrMissingName
	}
	if skill.Handler == nil {
		return fmt.Errorf("%w: %s", ErrMissingHandler, skill.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.skills[skill.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSkill, skill.Name)
	}
	r.skills[skill.Name] = skill
	return nil
}

func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.skills, name)
}

func (r *Registry) Get(name string) *Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.skills[name]
}

// GetAll returns every skill sorted by name.
func (r *Registry) GetAll() []*Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Skill, 0, len(r.skills))
	for _, s := range r.skills {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b *Skill) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func (r *Registry) GetByDomain(domain string) []*Skill {
	var out []*Skill
	for _, s := range r.GetAll() {
		if s.Domain == domain {
			out = append(out, s)
		}
	}
	return out
}

// Invoke runs a skill. Failures are reported in the Result, never returned.
func (r *Registry) Invoke(ctx context.Context, name string, input json.RawMessage) *Result {
	r.mu.Lock()
	skill := r.skills[name]
	if skill != nil {
		skill.InvokeCount++
	}
	r.mu.Unlock()

	if skill == nil {
		return &Result{SkillName: name, Error: "skill not found: " + name}
	}

	data, err := skill.Handler(ctx, input)
	if err != nil {
		return &Result{SkillName: name, Error: err.Error()}
	}
	return &Result{SkillName: name, Success: true, Data: data}
}

// ToolDefinition renders s in the tool-use wire format.
func (s *Skill) ToolDefinition() map[string]any {
	return map[string]any{
		"name":         s.Name,
		"description":  s.Description,
		"input_schema": s.InputSchema,
	}
}

func (r *Registry) ToolDefinitions() []map[string]any {
	all := r.GetAll()
	out := make([]map[string]any, len(all))
	for i, s := range all {
		out[i] = s.ToolDefinition()
	}
	return out
}

// Decode unmarshals tool input, rejecting unknown fields.
func Decode[T any](input json.RawMessage) (T, error) {
	var v T
	if len(input) == 0 {
		return v, nil
	}
	dec := json.NewDecoder(strings.NewReader(string(input)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("invalid input: %w", err)
	}
	return v, nil
}
