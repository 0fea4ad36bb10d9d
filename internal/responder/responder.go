// Package responder turns a user message plus the retrieved memory context
// into reply text using rule templates. It stands in for a model-backed
// generator and can be swapped out behind the same Generate signature.
package responder

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"

	"github.com/memkeep/memkeep/internal/domain"
)

// Input carries everything the generator may use for one turn.
type Input struct {
	Message  string
	UserName string
	// NewMemory is the first memory created this turn, if any.
	NewMemory *domain.Memory
	// Relevant is the ranked memory context for the message.
	Relevant []domain.RankedMemory
}

// Responder is a deterministic function of its input and its random source.
// Tests inject a seeded rand.Rand to pin template selection.
type Responder struct {
	rng *rand.Rand
}

func New(rng *rand.Rand) *Responder {
	return &Responder{rng: rng}
}

var (
	greetings      = []string{"hi", "hello", "hey", "greetings", "good morning", "good afternoon", "good evening", "howdy", "sup", "yo"}
	goodbyes       = []string{"bye", "goodbye", "see you", "farewell", "later", "take care"}
	questionStarts = []string{"what", "when", "where", "who", "why", "how", "can you", "could you", "would you", "do you", "are you", "is there"}
	scheduleWords  = []string{"meeting", "schedule", "call", "appointment", "book", "plan", "calendar", "reminder"}
	nameIntros     = []string{"i am ", "i'm ", "call me ", "this is "}

	prefSubjectPattern = regexp.MustCompile(`(?:prefer|like|love|enjoy)\s+(\w+)|favorite\s+(\w+)`)
	taskPattern        = regexp.MustCompile(`remind me (?:to|about)\s+(.+)|(?:need|have) to\s+(.+)|(?:schedule|book)\s+(.+)`)
	goalPattern        = regexp.MustCompile(`want to\s+(.+)|goal (?:is|:)\s+(.+)|(?:trying|planning|hoping) to\s+(.+)`)
)

var templates = map[string][]string{
	"greeting": {
		"Hello%s! How can I help you today?",
		"Hi%s! What can I do for you?",
		"Hello%s! I'm here to assist you.",
	},
	"greeting_with_memory": {
		"Hello%s! Good to see you again. How can I help?",
		"Hi%s! I remember our last conversation. What's on your mind?",
		"Hey%s! What would you like to talk about today?",
	},
	"name_introduction": {
		"Nice to meet you, %s! I'll remember that.",
		"Great to meet you, %s! I've noted your name.",
		"Pleased to meet you, %s! I'll keep that in mind.",
	},
	"preference_noted": {
		"Got it! I've noted your preference for %s.",
		"Noted! I'll keep that preference about %s in mind going forward.",
		"Perfect! I've added %s to what I know about your preferences.",
	},
	"constraint_noted": {
		"I understand and will respect that boundary.",
		"Got it! I'll make sure to honor that constraint.",
		"Understood! I'll remember that restriction.",
	},
	"commitment_noted": {
		"I've added that to your task list.",
		"Noted! I'll help you remember about %s.",
		"Got it! I've recorded that commitment.",
	},
	"goal_noted": {
		"Great goal! I'll help you work towards %s.",
		"I've noted your objective. Let's work on achieving it!",
		"That's a worthy goal! I'll remember it.",
	},
	"memory_recall": {
		"Based on what I know about you, %s",
		"I recall that %s",
		"From our previous conversations, I remember %s",
	},
	"no_memory_yet": {
		"I don't have that information yet. Could you tell me more?",
		"I haven't learned about that. Can you share more details?",
		"I'd like to learn more about that. Could you elaborate?",
	},
	"goodbye": {
		"Goodbye%s! Have a great day!",
		"See you later%s! Take care!",
		"Bye%s! Looking forward to our next chat!",
	},
	"default": {
		"I understand. Is there anything else you'd like to talk about?",
		"Got it! What else can I help you with?",
		"I see. How else can I assist you?",
	},
	"default_with_name": {
		"I understand, %s. What else would you like to discuss?",
		"Got it, %s! How else can I help?",
		"I see, %s. Is there anything else?",
	},
}

// Generate produces the reply for one turn.
func (r *Responder) Generate(in Input) string {
	msg := strings.ToLower(strings.TrimSpace(in.Message))
	hasName := in.UserName != "" && in.UserName != "User"
	hasMemory := len(in.Relevant) > 0

	nameSuffix := ""
	if hasName {
		nameSuffix = " " + in.UserName
	}

	switch {
	case isGreeting(msg):
		if hasMemory && hasName {
			return fmt.Sprintf(r.pick("greeting_with_memory"), nameSuffix)
		}
		return fmt.Sprintf(r.pick("greeting"), nameSuffix)

	case strings.Contains(msg, "my name is") || isNameIntro(msg):
		if hasName {
			return fmt.Sprintf(r.pick("name_introduction"), in.UserName)
		}
		return "Thanks for the introduction! I'll remember that."

	case in.NewMemory != nil:
		return r.acknowledge(in.NewMemory)

	case isQuestion(in.Message):
		return r.answer(msg, in)

	case isScheduling(msg):
		if containsPreference(in.Relevant) {
			return "Based on your preferences, I can help with that! When would work best for you?"
		}
		return "Sure! When would you like to schedule that?"

	case isGoodbye(msg):
		return fmt.Sprintf(r.pick("goodbye"), nameSuffix)

	case hasMemory || hasName:
		return fmt.Sprintf(r.pick("default_with_name"), in.UserName)
	}

	return r.pick("default")
}

func (r *Responder) acknowledge(m *domain.Memory) string {
	switch m.Type {
	case domain.MemoryTypePreference:
		subject := firstGroup(prefSubjectPattern, m.Content)
		if subject == "" {
			subject = "that"
		}
		return fmt.Sprintf(r.pick("preference_noted"), subject)
	case domain.MemoryTypeConstraint:
		return r.pick("constraint_noted")
	case domain.MemoryTypeCommitment:
		task := firstGroup(taskPattern, m.Content)
		if task == "" {
			task = "that"
		}
		tmpl := r.pick("commitment_noted")
		if strings.Contains(tmpl, "%s") {
			return fmt.Sprintf(tmpl, task)
		}
		return tmpl
	case domain.MemoryTypeGoal:
		goal := firstGroup(goalPattern, m.Content)
		if goal == "" {
			goal = "that"
		}
		tmpl := r.pick("goal_noted")
		if strings.Contains(tmpl, "%s") {
			return fmt.Sprintf(tmpl, goal)
		}
		return tmpl
	case domain.MemoryTypeFact:
		return "Thanks for sharing! I've noted that information."
	}
	return r.pick("default")
}

func (r *Responder) answer(msg string, in Input) string {
	if strings.Contains(msg, "my name") || strings.Contains(msg, "who am i") {
		if in.UserName != "" && in.UserName != "User" {
			return fmt.Sprintf("Your name is %s!", in.UserName)
		}
		return "I don't know your name yet. What should I call you?"
	}

	if containsAny(msg, []string{"prefer", "like", "favorite", "love"}) {
		if pref := firstOfType(in.Relevant, domain.MemoryTypePreference); pref != "" {
			return fmt.Sprintf("Based on what you've told me, %s", lowerFirst(pref))
		}
		if len(in.Relevant) == 0 {
			return r.pick("no_memory_yet")
		}
		return "I don't have information about your preferences yet."
	}

	if containsAny(msg, []string{"when", "time", "schedule"}) {
		if pref := firstOfType(in.Relevant, domain.MemoryTypePreference); pref != "" {
			return fmt.Sprintf("You mentioned that %s Does that help?", lowerFirst(pref))
		}
		return "I don't have specific timing information. Can you tell me more?"
	}

	if containsAny(msg, []string{"task", "todo", "remind", "commitment"}) {
		if task := firstOfType(in.Relevant, domain.MemoryTypeCommitment); task != "" {
			return fmt.Sprintf("You have this on your list: %s", task)
		}
		return "You don't have any tasks or commitments recorded yet."
	}

	if len(in.Relevant) == 0 {
		return r.pick("no_memory_yet")
	}
	return fmt.Sprintf(r.pick("memory_recall"), lowerFirst(in.Relevant[0].Content))
}

func (r *Responder) pick(key string) string {
	options := templates[key]
	return options[r.rng.Intn(len(options))]
}

func isGreeting(msg string) bool {
	for _, g := range greetings {
		if msg == g || strings.HasPrefix(msg, g) {
			return true
		}
	}
	return false
}

func isGoodbye(msg string) bool    { return containsAny(msg, goodbyes) }
func isScheduling(msg string) bool { return containsAny(msg, scheduleWords) }
func isNameIntro(msg string) bool  { return containsAny(msg, nameIntros) }

func isQuestion(msg string) bool {
	if strings.Contains(msg, "?") {
		return true
	}
	lower := strings.ToLower(msg)
	for _, qw := range questionStarts {
		if strings.HasPrefix(lower, qw) {
			return true
		}
	}
	return false
}

func containsAny(msg string, words []string) bool {
	for _, w := range words {
		if strings.Contains(msg, w) {
			return true
		}
	}
	return false
}

func containsPreference(ranked []domain.RankedMemory) bool {
	for _, m := range ranked {
		if m.Type == domain.MemoryTypePreference {
			return true
		}
	}
	return false
}

func firstOfType(ranked []domain.RankedMemory, t domain.MemoryType) string {
	for _, m := range ranked {
		if m.Type == t {
			return m.Content
		}
	}
	return ""
}

func firstGroup(re *regexp.Regexp, text string) string {
	match := re.FindStringSubmatch(strings.ToLower(text))
	if match == nil {
		return ""
	}
	for _, g := range match[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
