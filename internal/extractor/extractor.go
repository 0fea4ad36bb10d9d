// Package extractor turns raw message text into validated memory candidates
// using per-type keyword gates and ordered pattern rules.
package extractor

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/memkeep/memkeep/internal/contract"
	"github.com/memkeep/memkeep/internal/domain"
)

// typeRules holds the admission keywords and ordered patterns for one type.
// A type is only pattern-matched when at least one keyword appears in the
// message; within a type the first matching pattern wins.
type typeRules struct {
	memType  domain.MemoryType
	keywords []string
	patterns []*regexp.Regexp
}

type Extractor struct {
	rules  []typeRules
	logger *zap.Logger

	sentenceSplit *regexp.Regexp
	whitespace    *regexp.Regexp
}

func New(logger *zap.Logger) *Extractor {
	return &Extractor{
		rules:         initRules(),
		logger:        logger,
		sentenceSplit: regexp.MustCompile(`[.!?]+`),
		whitespace:    regexp.MustCompile(`\s+`),
	}
}

func initRules() []typeRules {
	return []typeRules{
		{
			memType: domain.MemoryTypePreference,
			keywords: []string{
				"prefer", "like", "love", "enjoy", "favorite", "want", "hate", "dislike",
			},
			patterns: compile(
				`i (prefer|like|love|enjoy|want|favor|choose)\s+(.+)`,
				`i'd (prefer|like|love|rather)\s+(.+)`,
				`my favorite\s+(.+)`,
				`i (always|usually|often)\s+(.+)`,
				`i'm (into|fond of)\s+(.+)`,
			),
		},
		{
			memType: domain.MemoryTypeFact,
			keywords: []string{
				"my name", "i am", "i work", "i live", "i have", "i'm from",
			},
			patterns: compile(
				`my name is\s+(\w+)`,
				`i am\s+(?:a|an)?\s*(\w+)`,
				`i work (?:at|for)\s+(.+)`,
				`i live in\s+(.+)`,
				`i(?:'m| am)\s+(\d+)\s+years old`,
				`i(?:'m| am) from\s+(.+)`,
				`my\s+(\w+)\s+is\s+(.+)`,
				`i have\s+(?:a|an)?\s*(.+)`,
			),
		},
		{
			memType: domain.MemoryTypeConstraint,
			keywords: []string{
				"don't", "never", "can't", "not allowed", "forbidden", "must not",
			},
			patterns: compile(
				`(?:don't|do not|never)\s+(.+)`,
				`i (?:can't|cannot|won't)\s+(.+)`,
				`(?:not allowed|forbidden|prohibited)\s+(.+)`,
				`(?:must not|shouldn't)\s+(.+)`,
				`i (?:refuse|decline) to\s+(.+)`,
			),
		},
		{
			memType: domain.MemoryTypeCommitment,
			keywords: []string{
				"remind", "schedule", "meeting", "appointment", "task", "todo", "deadline",
			},
			patterns: compile(
				`remind me (?:to|about)\s+(.+)`,
				`i (?:need|have) to\s+(.+)`,
				`(?:schedule|book|plan)\s+(?:a|an)?\s*(.+)`,
				`(?:meeting|call|appointment)\s+(?:with|at|on)\s+(.+)`,
				`i'll\s+(.+)`,
				`i (?:will|should)\s+(.+)`,
			),
		},
		{
			memType: domain.MemoryTypeGoal,
			keywords: []string{
				"goal", "aim", "objective", "plan to", "want to", "hope to",
			},
			patterns: compile(
				`i want to\s+(.+)`,
				`my goal is (?:to)?\s*(.+)`,
				`i(?:'m| am) trying to\s+(.+)`,
				`i hope to\s+(.+)`,
				`i aim to\s+(.+)`,
				`i plan to\s+(.+)`,
			),
		},
		{
			memType: domain.MemoryTypeRelationship,
			keywords: []string{
				"my wife", "my husband", "my friend", "my colleague", "my boss", "my partner",
			},
			patterns: compile(
				`my\s+(wife|husband|partner|friend|colleague|boss|manager)\s+(?:is|named)\s+(\w+)`,
				`(\w+)\s+is my\s+(wife|husband|partner|friend|colleague)`,
				`i work with\s+(\w+)`,
				`my\s+(son|daughter|child|parent)\s+(.+)`,
			),
		},
	}
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

var timeWords = []string{
	"morning", "afternoon", "evening", "night", "am", "pm",
	"monday", "tuesday", "wednesday", "thursday", "friday",
	"saturday", "sunday", "weekday", "weekend",
}

var temporalWords = []string{"after", "before", "between", "during", "at", "on"}

var negationWords = []string{
	"don't", "do not", "never", "not", "won't", "will not",
	"can't", "cannot", "shouldn't", "should not",
}

// Extract runs single-sentence extraction: keyword gate, then ordered
// patterns, then the temporal-preference and negation fallbacks. The first
// match wins. Returns nil when nothing was extracted or the candidate
// failed validation.
func (e *Extractor) Extract(message string, turn int, userID string) *domain.Memory {
	msgLower := strings.ToLower(strings.TrimSpace(message))
	if len(msgLower) < 3 {
		return nil
	}

	for _, rules := range e.rules {
		if !containsAny(msgLower, rules.keywords) {
			continue
		}
		for _, pattern := range rules.patterns {
			if pattern.MatchString(msgLower) {
				return e.build(rules.memType, message, rules.memType.InitialConfidence(), turn, userID)
			}
		}
	}

	if isTimePreference(msgLower) {
		return e.build(domain.MemoryTypePreference, message, 0.88, turn, userID)
	}
	if containsAny(msgLower, negationWords) {
		return e.build(domain.MemoryTypeConstraint, message, 0.85, turn, userID)
	}

	return nil
}

// ExtractAll splits the message on sentence-terminating punctuation and
// extracts from each non-trivial sentence independently, in order.
func (e *Extractor) ExtractAll(message string, turn int, userID string) []domain.Memory {
	var memories []domain.Memory
	for _, sentence := range e.sentenceSplit.Split(message, -1) {
		sentence = strings.TrimSpace(sentence)
		if len(sentence) <= 3 {
			continue
		}
		if m := e.Extract(sentence, turn, userID); m != nil {
			memories = append(memories, *m)
		}
	}
	return memories
}

func (e *Extractor) build(t domain.MemoryType, content string, confidence float64, turn int, userID string) *domain.Memory {
	m := &domain.Memory{
		ID:           uuid.New(),
		UserID:       userID,
		Type:         t,
		Content:      e.normalize(content),
		Confidence:   confidence,
		CreatedTurn:  turn,
		LastUsedTurn: turn,
		UseCount:     1,
		Active:       true,
	}
	if err := contract.Validate(m); err != nil {
		e.logger.Debug("dropping invalid candidate",
			zap.String("type", string(t)),
			zap.Error(err))
		return nil
	}
	return m
}

// normalize collapses internal whitespace, capitalizes the first character,
// and ensures a terminal period.
func (e *Extractor) normalize(content string) string {
	content = e.whitespace.ReplaceAllString(strings.TrimSpace(content), " ")
	if content == "" {
		return content
	}
	content = strings.ToUpper(content[:1]) + content[1:]
	if !strings.ContainsAny(content[len(content)-1:], ".!?") {
		content += "."
	}
	return content
}

var (
	namePattern   = regexp.MustCompile(`my name is\s+([a-zA-Z]+(?:\s+[a-zA-Z]+)?)`)
	iAmPattern    = regexp.MustCompile(`i(?:'m| am)\s+([a-zA-Z]+)(?:\s|$|\.)`)
	callMePattern = regexp.MustCompile(`call me\s+([a-zA-Z]+)`)
)

// nameStopWords are common "i am X" continuations that are not names.
var nameStopWords = map[string]bool{
	"a": true, "an": true, "the": true, "going": true,
	"working": true, "living": true, "from": true, "here": true,
}

// ExtractName pulls a user name out of an introduction, or returns "".
func (e *Extractor) ExtractName(message string) string {
	msgLower := strings.ToLower(message)

	if m := namePattern.FindStringSubmatch(msgLower); m != nil {
		return capitalizeName(m[1])
	}
	if m := iAmPattern.FindStringSubmatch(msgLower); m != nil {
		if !nameStopWords[m[1]] {
			return capitalizeName(m[1])
		}
	}
	if m := callMePattern.FindStringSubmatch(msgLower); m != nil {
		return capitalizeName(m[1])
	}
	return ""
}

func capitalizeName(name string) string {
	words := strings.Fields(name)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func isTimePreference(msg string) bool {
	return containsAny(msg, timeWords) && containsAny(msg, temporalWords)
}
