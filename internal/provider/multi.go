package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

var _ Provider = (*Multi)(nil)

// Multi routes each request to a provider chosen from the model name.
type Multi struct {
	defaultProvider string
	byProvider      map[string]Provider
	modelToProvider map[string]string
}

// NewMulti creates a router. Models not matched by an explicit mapping or a
// well-known prefix go to defaultProvider.
func NewMulti(defaultProvider string, byProvider map[string]Provider, modelToProvider map[string]string) *Multi {
	if modelToProvider == nil {
		modelToProvider = map[string]string{}
	}
	return &Multi{
		defaultProvider: strings.ToLower(defaultProvider),
		byProvider:      byProvider,
		modelToProvider: modelToProvider,
	}
}

// Name implements Provider.
func (m *Multi) Name() string { return "multi" }

// Resolve returns the provider name that would serve model.
func (m *Multi) Resolve(model string) string {
	if p := m.modelToProvider[model]; p != "" {
		return strings.ToLower(p)
	}
	l := strings.ToLower(model)
	switch {
	case strings.HasPrefix(l, "gemini"):
		return "gemini"
	case strings.HasPrefix(l, "claude"):
		return "anthropic"
	case strings.HasPrefix(l, "gpt"), strings.HasPrefix(l, "o1"), strings.HasPrefix(l, "o3"), strings.HasPrefix(l, "o4"):
		return "openai"
	default:
		return m.defaultProvider
	}
}

func (m *Multi) pick(model string) (Provider, error) {
	if p := m.byProvider[m.Resolve(model)]; p != nil {
		return p, nil
	}
	if p := m.byProvider[m.defaultProvider]; p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNoProvider, model)
}

// OpenStream implements Provider.
func (m *Multi) OpenStream(ctx context.Context, req Request) (Stream, error) {
	p, err := m.pick(req.Model)
	if err != nil {
		return nil, err
	}
	return p.OpenStream(ctx, req)
}

// ProviderFor returns the name of the concrete provider serving model, or
// the empty string when none is configured.
func (m *Multi) ProviderFor(model string) string {
	p, err := m.pick(model)
	if err != nil {
		return ""
	}
	return p.Name()
}

// Providers lists the configured provider names.
func (m *Multi) Providers() []string {
	out := make([]string, 0, len(m.byProvider))
	for name, p := range m.byProvider {
		if p != nil {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
