package convo

import (
	"regexp"
	"strings"

	"github.com/obolbot/obol/internal/intent"
	"github.com/obolbot/obol/internal/store"
)

// historyDepth is how many recent assistant turns the resolver scans.
const historyDepth = 4

// tickerPattern matches an emphasized ticker token like *BTC* in
// assistant replies.
var tickerPattern = regexp.MustCompile(`\*([A-Z]{2,5})\*`)

// referentialIntents are the intents where a bare pronoun can stand in
// for the coin discussed earlier.
var referentialIntents = map[intent.Intent]bool{
	intent.IntentCryptoInfo:    true,
	intent.IntentTokenAnalysis: true,
	intent.IntentWhereToBuy:    true,
}

// pronouns trigger resolution, in both supported languages.
var pronouns = map[string]bool{
	"it": true, "its": true, "this": true, "that": true, "one": true,
	"он": true, "она": true, "оно": true, "его": true, "её": true,
	"этот": true, "эта": true, "это": true, "него": true, "ней": true,
}

// Resolver substitutes the most recently mentioned ticker for a
// pronoun in follow-up questions ("and where can I buy it?").
type Resolver struct{}

// NewResolver creates a resolver.
func NewResolver() *Resolver { return &Resolver{} }

// HistoryDepth is the number of assistant turns Resolve expects,
// newest first.
func (r *Resolver) HistoryDepth() int { return historyDepth }

// Applies reports whether resolution could fire for this intent and
// utterance, letting callers skip the history load otherwise.
func (r *Resolver) Applies(it intent.Intent, utterance string) bool {
	return referentialIntents[it] && containsPronoun(utterance)
}

// Resolve returns the ticker the pronoun refers to. It fires only when
// the intent is referential and the utterance contains a pronoun; it
// then scans the assistant turns newest-first and returns the first
// emphasized ticker found. The empty string means no substitution.
func (r *Resolver) Resolve(it intent.Intent, utterance string, history []*store.Turn) string {
	if !referentialIntents[it] || !containsPronoun(utterance) {
		return ""
	}

	n := min(len(history), historyDepth)
	for _, turn := range history[:n] {
		if turn.Role != store.RoleAssistant {
			continue
		}
		if m := tickerPattern.FindStringSubmatch(turn.Text); m != nil {
			return m[1]
		}
	}
	return ""
}

func containsPronoun(utterance string) bool {
	for _, word := range strings.FieldsFunc(strings.ToLower(utterance), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('а' <= r && r <= 'я') && r != 'ё'
	}) {
		if pronouns[word] {
			return true
		}
	}
	return false
}
