package domain

import (
	"strings"
	"testing"
)

func TestSystemPromptIncludesNameAndPersona(t *testing.T) {
	t.Parallel()

	p := AgentProfile{DisplayName: "Ada", Persona: "curious", Model: "m"}
	prompt := p.SystemPrompt()
	if !strings.Contains(prompt, "You are Ada, a curious AI assistant.") {
		t.Fatalf("unexpected prompt: %q", prompt)
	}
	if !strings.HasSuffix(prompt, "Your personality: curious") {
		t.Fatalf("persona missing from prompt tail: %q", prompt)
	}

	turn := p.SystemTurn()
	if turn.Role != RoleSystem || turn.Content != prompt {
		t.Fatalf("unexpected system turn: %+v", turn)
	}
}

func TestWithModelLeavesOriginalUntouched(t *testing.T) {
	t.Parallel()

	p := DefaultProfile()
	swapped := p.WithModel("gpt-4o")
	if p.Model != DefaultModel {
		t.Errorf("original model changed to %q", p.Model)
	}
	if swapped.Model != "gpt-4o" || swapped.DisplayName != p.DisplayName || swapped.Persona != p.Persona {
		t.Errorf("unexpected swapped profile: %+v", swapped)
	}
}

func TestAgentProfileFallsBack(t *testing.T) {
	t.Parallel()

	fallback := DefaultProfile()
	var missing *Agent
	if got := missing.Profile(fallback); got != fallback {
		t.Errorf("nil agent should yield fallback, got %+v", got)
	}

	a := &Agent{Name: "Sentinel", Type: AgentTypeSentiment}
	got := a.Profile(fallback)
	if got.DisplayName != "Sentinel" || got.Persona != fallback.Persona || got.Model != fallback.Model {
		t.Errorf("unexpected profile: %+v", got)
	}
}

func TestAgentTypeValid(t *testing.T) {
	t.Parallel()

	for _, typ := range AgentTypes() {
		if !typ.Valid() {
			t.Errorf("%q should be valid", typ)
		}
	}
	if AgentType("weather").Valid() {
		t.Error("unknown type reported valid")
	}
}
