// Package augment derives the extra context for a user turn: resource
// content appended to the utterance and an optional system instruction
// taken from a prompt template.
package augment

import (
	"context"
	"strings"

	"github.com/m4xw311/retainer/tools"
	"go.uber.org/zap"
)

// ResourceLabel separates the user's words from appended resource content.
const ResourceLabel = "\n\nRelevant Information from Resources:\n"

// Source reads resource content and prompt bodies on demand.
type Source interface {
	ReadResource(ctx context.Context, uri string) (tools.ResourceContent, error)
	GetPrompt(ctx context.Context, name string) (string, error)
}

type Result struct {
	UserText string
	// SystemOverride is a prompt body to install as system instruction,
	// or empty.
	SystemOverride string
	// Resources lists the URIs whose content was appended.
	Resources []string
}

type Augmenter struct {
	source  Source
	matcher Matcher
	logger  *zap.Logger
}

func New(source Source, matcher Matcher, logger *zap.Logger) *Augmenter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Augmenter{source: source, matcher: matcher, logger: logger}
}

// Augment never fails: a resource or prompt that cannot be read is logged
// and left out. It does not touch any conversation state.
func (a *Augmenter) Augment(ctx context.Context, raw string, catalog *tools.Catalog) Result {
	res := Result{UserText: raw}
	if a == nil || a.matcher == nil || catalog == nil {
		return res
	}
	m := a.matcher.Match(raw)

	if len(m.Queries) > 0 && len(catalog.Resources) > 0 {
		bodies, uris := a.searchResources(ctx, m.Queries, catalog.Resources)
		if len(bodies) > 0 {
			res.UserText = raw + ResourceLabel + strings.Join(bodies, "\n")
			res.Resources = uris
		}
	}

	if m.PromptName != "" {
		if !catalog.HasPrompt(m.PromptName) {
			a.logger.Debug("prompt trigger fired but the provider has no such prompt", zap.String("prompt", m.PromptName))
		} else if body, err := a.source.GetPrompt(ctx, m.PromptName); err != nil {
			a.logger.Warn("failed to fetch prompt", zap.String("prompt", m.PromptName), zap.Error(err))
		} else {
			res.SystemOverride = body
		}
	}
	return res
}

// searchResources reads every resource once and keeps those whose name or
// content contains any query, case-insensitively, in catalog order.
func (a *Augmenter) searchResources(ctx context.Context, queries []string, refs []tools.ResourceRef) ([]string, []string) {
	var bodies, uris []string
	lowered := make([]string, len(queries))
	for i, q := range queries {
		lowered[i] = strings.ToLower(q)
	}

	for _, ref := range refs {
		content, err := a.source.ReadResource(ctx, ref.URI)
		if err != nil {
			a.logger.Warn("failed to read resource", zap.String("uri", ref.URI), zap.Error(err))
			continue
		}
		name := strings.ToLower(ref.Name)
		text := strings.ToLower(content.Text)
		for _, q := range lowered {
			if strings.Contains(name, q) || (content.Kind == tools.ContentText && strings.Contains(text, q)) {
				body := content.Body(ref)
				if body != "" {
					bodies = append(bodies, body)
					uris = append(uris, ref.URI)
				}
				break
			}
		}
	}
	a.logger.Debug("resource search", zap.Strings("queries", queries), zap.Strings("matched", uris))
	return bodies, uris
}
