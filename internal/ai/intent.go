package ai

import (
	"strings"
	"unicode"
)

// Mode is the coarse intent of a user message.
type Mode string

const (
	ModeConversational Mode = "conversational"
	ModeOperational    Mode = "operational"
)

// ToolPolicy controls whether the model may, must, or must not call tools.
type ToolPolicy string

const (
	PolicyNone   ToolPolicy = "none"
	PolicyForced ToolPolicy = "required"
	PolicyAuto   ToolPolicy = "auto"
)

// MaxChainedSteps bounds the model round trips of a multi-step request.
const MaxChainedSteps = 5

// Classification is the routing decision for one message.
type Classification struct {
	Mode       Mode       `json:"mode"`
	ToolPolicy ToolPolicy `json:"toolPolicy"`
	StepBudget int        `json:"stepBudget"`
	Chained    bool       `json:"chained"`
}

// RequiresTools reports whether an operational cue matched, meaning the turn
// cannot be served without provider access.
func (c Classification) RequiresTools() bool {
	return c.ToolPolicy == PolicyForced || c.Chained
}

// WithoutTools downgrades c to a tool-less turn.
func (c Classification) WithoutTools() Classification {
	c.ToolPolicy = PolicyNone
	c.StepBudget = 1
	c.Chained = false
	return c
}

var operationalCues = phrases(
	"invoice", "invoices", "show", "list", "get", "fetch", "display", "find",
	"search", "unpaid", "paid", "outstanding", "due", "overdue", "create",
	"update", "delete", "email", "send",
)

var conversationalCues = phrases(
	"hi", "hello", "hey", "how are you", "good morning", "good afternoon",
	"good evening", "thanks", "thank you", "what can you do", "help",
	"capabilities",
)

var chainConjunctions = phrases("and", "then", "after")

// verb pairs that imply a second step depending on the first
var chainPairs = [][2]string{
	{"create", "email"}, {"create", "send"},
	{"update", "send"}, {"update", "email"},
	{"find", "update"}, {"get", "update"},
	{"get", "delete"}, {"find", "delete"},
}

// Classify routes text by lexical cues. Operational cues win over
// conversational ones; an operational message that chains actions gets the
// multi-step budget.
func Classify(text string) Classification {
	tokens := tokenize(text)
	operational := containsAny(tokens, operationalCues)
	conversational := containsAny(tokens, conversationalCues)

	switch {
	case operational:
		if isChained(tokens) {
			return Classification{Mode: ModeOperational, ToolPolicy: PolicyAuto, StepBudget: MaxChainedSteps, Chained: true}
		}
		return Classification{Mode: ModeOperational, ToolPolicy: PolicyForced, StepBudget: 1}
	case conversational:
		return Classification{Mode: ModeConversational, ToolPolicy: PolicyNone, StepBudget: 1}
	default:
		// no cue either way; let the model decide but allow one step only
		return Classification{Mode: ModeOperational, ToolPolicy: PolicyAuto, StepBudget: 1}
	}
}

func isChained(tokens []string) bool {
	if containsAny(tokens, chainConjunctions) {
		return true
	}
	for _, p := range chainPairs {
		if containsPhrase(tokens, []string{p[0]}) && containsPhrase(tokens, []string{p[1]}) {
			return true
		}
	}
	return false
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func phrases(ss ...string) [][]string {
	out := make([][]string, len(ss))
	for i, s := range ss {
		out[i] = strings.Fields(s)
	}
	return out
}

func containsAny(tokens []string, set [][]string) bool {
	for _, p := range set {
		if containsPhrase(tokens, p) {
			return true
		}
	}
	return false
}

// containsPhrase reports whether phrase occurs as a contiguous token run.
func containsPhrase(tokens, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(tokens) {
		return false
	}
outer:
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		for j, w := range phrase {
			if tokens[i+j] != w {
				continue outer
			}
		}
		return true
	}
	return false
}
