package augment

import (
	"strings"

	"github.com/m4xw311/retainer/config"
)

// Match is what a Matcher extracts from one utterance.
type Match struct {
	// Queries to search resources with. Empty means no resource lookup.
	Queries []string
	// PromptName requests a prompt template as the system instruction.
	PromptName string
}

// Matcher decides, from the raw utterance alone, which context to fetch.
type Matcher interface {
	Match(utterance string) Match
}

// PhraseMatcher triggers on case-insensitive phrases.
type PhraseMatcher struct {
	// ResourceTriggers enable a resource lookup when any is contained in
	// the utterance.
	ResourceTriggers []string
	// Queries replace the raw utterance as search query when their phrase
	// occurs in it.
	Queries []config.QueryAlias
	// PromptTrigger requests PromptName when contained in the utterance.
	PromptTrigger string
	PromptName    string
}

// NewPhraseMatcher builds a PhraseMatcher from configuration.
func NewPhraseMatcher(cfg config.Augmentation) *PhraseMatcher {
	return &PhraseMatcher{
		ResourceTriggers: cfg.ResourceTriggers,
		Queries:          cfg.Queries,
		PromptTrigger:    cfg.PromptTrigger,
		PromptName:       cfg.PromptName,
	}
}

func (m *PhraseMatcher) Match(utterance string) Match {
	lowered := strings.ToLower(utterance)
	var out Match

	if containsAny(lowered, m.ResourceTriggers) {
		for _, alias := range m.Queries {
			if alias.Phrase != "" && alias.Query != "" && strings.Contains(lowered, strings.ToLower(alias.Phrase)) {
				out.Queries = appendUnique(out.Queries, alias.Query)
			}
		}
		if len(out.Queries) == 0 {
			out.Queries = []string{utterance}
		}
	}

	if m.PromptTrigger != "" && m.PromptName != "" && strings.Contains(lowered, strings.ToLower(m.PromptTrigger)) {
		out.PromptName = m.PromptName
	}
	return out
}

func containsAny(lowered string, phrases []string) bool {
	for _, p := range phrases {
		if p != "" && strings.Contains(lowered, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
