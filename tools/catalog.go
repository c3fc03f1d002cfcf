package tools

import (
	"context"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/m4xw311/retainer/config"
	"github.com/m4xw311/retainer/errors"
	"go.uber.org/zap"
)

// Catalog is what the provider offers for one session. It is loaded once
// and never reloaded.
type Catalog struct {
	Tools     []Tool
	Resources []ResourceRef
	Prompts   []PromptRef

	byName map[string]Tool
}

// Tool looks up an active tool by name.
func (c *Catalog) Tool(name string) (Tool, bool) {
	if c == nil {
		return nil, false
	}
	t, ok := c.byName[name]
	return t, ok
}

// HasPrompt reports whether the provider lists a prompt called name.
func (c *Catalog) HasPrompt(name string) bool {
	if c == nil {
		return false
	}
	for _, p := range c.Prompts {
		if p.Name == name {
			return true
		}
	}
	return false
}

// Load enumerates tools, resources and prompts, one listing call each, and
// keeps the tools selected by ts. A nil ts keeps every tool.
func Load(ctx context.Context, p Provider, ts *config.Toolset, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if p == nil || !p.Initialized() {
		return nil, errors.E(errors.ProviderUnavailable, errors.New("provider session is not initialized"))
	}

	descs, err := p.ListTools(ctx)
	if err != nil {
		return nil, errors.E(errors.ProviderUnavailable, errors.Wrapf(err, "failed to list tools"))
	}
	resources, err := p.ListResources(ctx)
	if err != nil {
		return nil, errors.E(errors.ProviderUnavailable, errors.Wrapf(err, "failed to list resources"))
	}
	prompts, err := p.ListPrompts(ctx)
	if err != nil {
		return nil, errors.E(errors.ProviderUnavailable, errors.Wrapf(err, "failed to list prompts"))
	}

	c := &Catalog{
		Resources: resources,
		Prompts:   prompts,
		byName:    make(map[string]Tool),
	}
	for _, d := range descs {
		if _, dup := c.byName[d.Name]; dup {
			logger.Warn("provider announced a tool twice, keeping the first", zap.String("tool", d.Name))
			continue
		}
		allowed, err := isToolAllowed(d.Name, ts)
		if err != nil {
			return nil, err
		}
		if !allowed {
			logger.Debug("tool excluded by toolset", zap.String("tool", d.Name), zap.String("toolset", ts.Name))
			continue
		}
		t := NewProviderTool(d, p)
		c.Tools = append(c.Tools, t)
		c.byName[d.Name] = t
	}

	logger.Info("capability catalog loaded",
		zap.Int("tools", len(c.Tools)),
		zap.Int("resources", len(c.Resources)),
		zap.Int("prompts", len(c.Prompts)),
	)
	return c, nil
}

// isToolAllowed checks a tool name against the toolset's glob patterns.
func isToolAllowed(name string, ts *config.Toolset) (bool, error) {
	if ts == nil {
		return true, nil
	}
	for _, pattern := range ts.Tools {
		match, err := doublestar.Match(pattern, name)
		if err != nil {
			return false, errors.Wrapf(err, "invalid glob pattern '%s' in toolset '%s'", pattern, ts.Name)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}
