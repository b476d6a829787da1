package memory

import (
	"context"
	"regexp"
	"strings"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/types"
)

/*
Extractor derives durable memories from a message. Implementations may call
out to a model; failures are absorbed by the Manager.
*/
type Extractor interface {
	Extract(ctx context.Context, msg types.Message) ([]types.MemoryEntry, error)
}

type ExtractorFunc func(ctx context.Context, msg types.Message) ([]types.MemoryEntry, error)

func (fn ExtractorFunc) Extract(ctx context.Context, msg types.Message) ([]types.MemoryEntry, error) {
	return fn(ctx, msg)
}

type extractionRule struct {
	pattern    *regexp.Regexp
	kind       types.MemoryType
	confidence float64
	tag        string
}

var heuristicRules = []extractionRule{
	{regexp.MustCompile(`(?i)\bmy name is\s+[^.!?\n]+`), types.MemoryFact, 0.95, "identity"},
	{regexp.MustCompile(`(?i)\bI live in\s+[^.!?\n]+`), types.MemoryFact, 0.85, "location"},
	{regexp.MustCompile(`(?i)\bI work (?:at|for|as)\s+[^.!?\n]+`), types.MemoryFact, 0.85, "work"},
	{regexp.MustCompile(`(?i)\bI (?:really )?(?:like|love|enjoy|prefer)\s+[^.!?\n]+`), types.MemoryPreference, 0.8, "likes"},
	{regexp.MustCompile(`(?i)\bI (?:hate|dislike|don't like|do not like)\s+[^.!?\n]+`), types.MemoryPreference, 0.8, "dislikes"},
	{regexp.MustCompile(`(?i)\bmy (?:wife|husband|partner|friend|brother|sister|mother|father|son|daughter|boss|colleague)\b[^.!?\n]*`), types.MemoryRelationship, 0.75, "relationship"},
	{regexp.MustCompile(`(?i)\bI (?:can|know how to)\s+[^.!?\n]+`), types.MemorySkill, 0.6, "skill"},
}

/*
HeuristicExtractor pulls first-person statements out of user messages with
a fixed set of patterns. It never fails.
*/
type HeuristicExtractor struct{}

func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{}
}

func (extractor *HeuristicExtractor) Extract(ctx context.Context, msg types.Message) ([]types.MemoryEntry, error) {
	if msg.Role != types.RoleUser {
		return nil, nil
	}

	var (
		out  []types.MemoryEntry
		seen = map[string]struct{}{}
	)

	for _, rule := range heuristicRules {
		for _, match := range rule.pattern.FindAllString(msg.Content, -1) {
			content := strings.TrimSpace(match)
			key := strings.ToLower(content)

			if _, dup := seen[key]; dup {
				continue
			}

			seen[key] = struct{}{}

			out = append(out, types.MemoryEntry{
				Type:       rule.kind,
				Content:    content,
				Confidence: rule.confidence,
				Source:     "message:" + msg.ID,
				Timestamp:  msg.Timestamp,
				Tags:       []string{rule.tag, "extracted"},
			})
		}
	}

	return out, nil
}
