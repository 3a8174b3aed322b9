package skills

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func noop(ctx context.Context, input json.RawMessage) (any, error) {
	return nil, nil
}

func TestNewSkill_Builder(t *testing.T) {
	skill := NewSkill("test_skill").
		Description("A test skill").
		Domain("testing").
		StringParam("input", "The input string", true).
		IntParam("count", "Number of times", false).
		BoolParam("verbose", "Enable verbose output", false).
		EnumParam("mode", "Mode", []string{"a", "b"}, false).
		ArrayParam("tags", "Tags", "string", false).
		Handler(noop).
		Build()

	if skill.Name != "test_skill" {
		t.Errorf("expected name 'test_skill', got %s", skill.Name)
	}
	if skill.Domain != "testing" {
		t.Errorf("expected domain 'testing', got %s", skill.Domain)
	}
	if len(skill.InputSchema.Properties) != 5 {
		t.Errorf("expected 5 properties, got %d", len(skill.InputSchema.Properties))
	}
	if len(skill.InputSchema.Required) != 1 || skill.InputSchema.Required[0] != "input" {
		t.Errorf("expected required [input], got %v", skill.InputSchema.Required)
	}
	if got := skill.InputSchema.Properties["tags"].Items.Type; got != "string" {
		t.Errorf("expected array items of string, got %s", got)
	}
	if got := skill.InputSchema.Properties["mode"].Enum; len(got) != 2 {
		t.Errorf("expected 2 enum values, got %v", got)
	}
}

func TestRegistry_Register(t *testing.T) {
	registry := NewRegistry()

	if err := registry.Register(NewSkill("my_skill").Handler(noop).Build()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := registry.Register(NewSkill("my_skill").Handler(noop).Build()); !errors.Is(err, ErrDuplicateSkill) {
		t.Errorf("expected ErrDuplicateSkill, got %v", err)
	}
	if err := registry.Register(&Skill{Handler: noop}); !errors.Is(err, ErrMissingName) {
		t.Errorf("expected ErrMissingName, got %v", err)
	}
	if err := registry.Register(&Skill{Name: "no_handler"}); !errors.Is(err, ErrMissingHandler) {
		t.Errorf("expected ErrMissingHandler, got %v", err)
	}
}

func TestRegistry_GetAllSorted(t *testing.T) {
	registry := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := registry.Register(NewSkill(name).Domain("d").Handler(noop).Build()); err != nil {
			t.Fatal(err)
		}
	}

	all := registry.GetAll()
	if len(all) != 3 || all[0].Name != "alpha" || all[2].Name != "zeta" {
		t.Errorf("unexpected order: %v", []string{all[0].Name, all[1].Name, all[2].Name})
	}
	if got := len(registry.GetByDomain("d")); got != 3 {
		t.Errorf("expected 3 in domain, got %d", got)
	}

	registry.Unregister("mid")
	if registry.Get("mid") != nil {
		t.Error("mid should be unregistered")
	}
}

func TestRegistry_Invoke(t *testing.T) {
	registry := NewRegistry()
	_ = registry.Register(NewSkill("echo").Handler(func(ctx context.Context, input json.RawMessage) (any, error) {
		return string(input), nil
	}).Build())
	_ = registry.Register(NewSkill("fail").Handler(func(ctx context.Context, input json.RawMessage) (any, error) {
		return nil, errors.New("boom")
	}).Build())

	result := registry.Invoke(context.Background(), "echo", json.RawMessage(`{"x":1}`))
	if !result.Success || result.Data != `{"x":1}` {
		t.Errorf("unexpected result: %+v", result)
	}

	result = registry.Invoke(context.Background(), "fail", nil)
	if result.Success || result.Error != "boom" {
		t.Errorf("unexpected result: %+v", result)
	}

	result = registry.Invoke(context.Background(), "missing", nil)
	if result.Success || result.Error == "" {
		t.Errorf("expected not found, got %+v", result)
	}

	if got := registry.Get("echo").InvokeCount; got != 1 {
		t.Errorf("expected invoke count 1, got %d", got)
	}
}

func TestRegistry_ToolDefinitions(t *testing.T) {
	registry := NewRegistry()
	_ = registry.Register(NewSkill("a").Description("first").StringParam("p", "", true).Handler(noop).Build())

	defs := registry.ToolDefinitions()
	if len(defs) != 1 {
		t.Fatalf("expected 1 definition, got %d", len(defs))
	}
	if defs[0]["name"] != "a" || defs[0]["description"] != "first" {
		t.Errorf("unexpected definition: %v", defs[0])
	}
	if _, err := json.Marshal(defs); err != nil {
		t.Errorf("definitions should marshal: %v", err)
	}
}

func TestDecode(t *testing.T) {
	type input struct {
		Name string `json:"name"`
	}

	got, err := Decode[input](json.RawMessage(`{"name":"x"}`))
	if err != nil || got.Name != "x" {
		t.Errorf("Decode: got %+v, %v", got, err)
	}

	if _, err := Decode[input](json.RawMessage(`{"nmae":"x"}`)); err == nil {
		t.Error("unknown field should be rejected")
	}

	empty, err := Decode[input](nil)
	if err != nil || empty.Name != "" {
		t.Errorf("empty input: got %+v, %v", empty, err)
	}
}
