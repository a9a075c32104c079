// Package classify implements the keyword and length heuristics that turn
// request text into routing signals. It is one strategy behind the router's
// Classifier interface; swapping it never touches routing policy.
package classify

import (
	"strings"

	"github.com/switchyard-ai/switchyard/internal/domain/routing"
)

// Config tunes the length thresholds of the heuristic.
type Config struct {
	SimpleMaxWords  int // at or below, with no other signal, the text is simple
	ComplexMinWords int // above, the text is complex regardless of keywords
}

// DefaultConfig returns the shipped thresholds.
func DefaultConfig() Config {
	return Config{SimpleMaxWords: 4, ComplexMinWords: 60}
}

// Heuristic classifies requests with keyword matching and word counts.
type Heuristic struct {
	cfg Config
}

// New returns a Heuristic. Non-positive thresholds fall back to defaults.
func New(cfg Config) *Heuristic {
	def := DefaultConfig()
	if cfg.SimpleMaxWords <= 0 {
		cfg.SimpleMaxWords = def.SimpleMaxWords
	}
	if cfg.ComplexMinWords <= 0 {
		cfg.ComplexMinWords = def.ComplexMinWords
	}
	return &Heuristic{cfg: cfg}
}

// acknowledgements matched against the whole normalized text.
var acks = map[string]struct{}{
	"hello": {}, "hi": {}, "hey": {}, "yo": {}, "good morning": {},
	"good afternoon": {}, "good evening": {}, "thanks": {}, "thank you": {},
	"ty": {}, "ok": {}, "okay": {}, "yes": {}, "no": {}, "sure": {},
	"got it": {}, "sounds good": {}, "bye": {}, "goodbye": {}, "see you": {},
	"nice": {}, "great": {}, "cool": {},
}

// greetingLeads allow a short tail after the greeting ("hi there").
var greetingLeads = []string{"hello", "hi", "hey", "thanks", "thank"}

// complexPhrases signal analysis, explanation, comparison, or design intent.
var complexPhrases = []string{
	"analyze", "analyse", "analysis", "explain", "compare", "evaluate",
	"assess", "design a", "design the", "architect", "trade-off", "tradeoff",
	"pros and cons", "implications", "impact of", "step by step", "in depth",
	"strategy", "reasoning", "walk me through", "deep dive", "how does",
	"why does", "why is",
}

// lookupLeads signal trivial single-fact lookups.
var lookupLeads = []string{
	"what is", "what's", "where is", "when is", "when was", "who is",
	"define ", "list ", "how many", "how much",
}

// strongCode is unmistakable code syntax; it marks a request code-shaped on
// its own.
var strongCode = []string{
	"```", "func ", "def ", "class ", "import ", "#include", "=>", "();",
	"{}", "};", "fmt.", "console.log", "traceback", "stack trace",
	"segfault", "panic:", "nil pointer", "null pointer", "syntax error",
	"unit test",
}

// weakCode are programming words that also occur in everyday language
// ("dress code", "python the snake"). Alone they never force the code route;
// they need a second signal from the text or a technical conversation.
// Matched as whole words so "api" does not fire inside "capital".
var weakCode = map[string]struct{}{
	"code": {}, "function": {}, "bug": {}, "compile": {}, "refactor": {},
	"api": {}, "python": {}, "golang": {}, "javascript": {}, "typescript": {},
	"rust": {}, "sql": {}, "regex": {}, "debug": {}, "stacktrace": {},
	"repo": {}, "git": {}, "backend": {}, "endpoint": {},
}

// Classify returns the routing signals for text given its recent
// conversation turns, oldest first.
func (h *Heuristic) Classify(text string, history []string) routing.Signals {
	normalized := normalize(text)
	wc := len(strings.Fields(text))

	sig := routing.Signals{WordCount: wc}
	sig.Code = h.looksLikeCode(normalized, history)
	sig.Class = h.class(normalized, wc, history)
	return sig
}

func (h *Heuristic) class(normalized string, wc int, history []string) routing.Class {
	switch {
	case isAck(normalized, wc):
		return routing.ClassSimple
	case wc > h.cfg.ComplexMinWords:
		return routing.ClassComplex
	case containsAny(normalized, complexPhrases):
		return routing.ClassComplex
	case isLookup(normalized, wc):
		return routing.ClassSimple
	case wc <= h.cfg.SimpleMaxWords:
		return routing.ClassSimple
	}

	// Ambiguous on its own. An analytical conversation in flight promotes
	// the follow-up to complex ("and the long-term effects?").
	for _, turn := range history {
		if containsAny(normalize(turn), complexPhrases) {
			return routing.ClassComplex
		}
	}
	return routing.ClassAmbiguous
}

func (h *Heuristic) looksLikeCode(normalized string, history []string) bool {
	if containsAny(normalized, strongCode) {
		return true
	}

	weak := countWeakCode(normalized)
	if weak == 0 {
		return false
	}
	if weak >= 2 {
		return true
	}

	// One everyday-looking programming word: only the surrounding
	// conversation can tip it. Non-technical history means no code route.
	for _, turn := range history {
		t := normalize(turn)
		if containsAny(t, strongCode) || countWeakCode(t) >= 2 {
			return true
		}
	}
	return false
}

// countWeakCode counts distinct weak programming words, whole-word matched.
func countWeakCode(normalized string) int {
	seen := map[string]struct{}{}
	for _, field := range strings.Fields(normalized) {
		word := strings.Trim(field, ".,;:!?'\"()")
		if _, ok := weakCode[word]; ok {
			seen[word] = struct{}{}
		}
	}
	return len(seen)
}

func isAck(normalized string, wc int) bool {
	if _, ok := acks[normalized]; ok {
		return true
	}
	if wc <= 3 {
		first, _, _ := strings.Cut(normalized, " ")
		for _, lead := range greetingLeads {
			if first == lead {
				return true
			}
		}
	}
	return false
}

func isLookup(normalized string, wc int) bool {
	if wc > 8 {
		return false
	}
	for _, lead := range lookupLeads {
		if strings.HasPrefix(normalized, lead) {
			return true
		}
	}
	return false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(s), ".!?"))
}

// EstimateTokens approximates the token count of text, blending word and
// character estimates.
func EstimateTokens(text string) int64 {
	words := len(strings.Fields(text))
	chars := len(text)
	return int64((words + chars/4) / 2)
}
