package command

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Vocabulary maps each command kind to the phrases that trigger it.
type Vocabulary map[Kind][]string

// DefaultVocabulary is the English word set.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Exit:         {"exit", "quit"},
		StartRecord:  {"record", "start"},
		RepeatReplay: {"replay", "repeat", "again"},
		ToggleInfo:   {"info"},
		SpeedDown:    {"slower"},
		SpeedUp:      {"faster"},
	}
}

// ParseVocabulary converts a config map keyed by kind name.
func ParseVocabulary(raw map[string][]string) (Vocabulary, error) {
	v := make(Vocabulary, len(raw))
	for name, phrases := range raw {
		k, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		v[k] = append(v[k], phrases...)
	}
	return v, nil
}

type rule struct {
	kind    Kind
	phrases []string
}

// Normalizer matches recognised text against a vocabulary. It is the only
// place vocabulary strings are interpreted.
type Normalizer struct {
	rules []rule
}

// NewNormalizer folds every phrase once and orders the rules by priority.
// Kinds absent from vocab are disabled.
func NewNormalizer(vocab Vocabulary) (*Normalizer, error) {
	n := &Normalizer{}
	for _, k := range Kinds {
		var folded []string
		for _, p := range vocab[k] {
			if f := Fold(p); f != "" {
				folded = append(folded, f)
			}
		}
		if len(folded) > 0 {
			n.rules = append(n.rules, rule{kind: k, phrases: folded})
		}
	}
	if len(n.rules) == 0 {
		return nil, fmt.Errorf("vocabulary has no usable phrases")
	}
	return n, nil
}

// Match returns the highest priority kind with a phrase contained in text.
// At most one kind is returned per utterance.
func (n *Normalizer) Match(text string) (Kind, bool) {
	folded := Fold(text)
	for _, r := range n.rules {
		for _, p := range r.phrases {
			if strings.Contains(folded, p) {
				return r.kind, true
			}
		}
	}
	return 0, false
}

// Enabled reports whether the vocabulary defines any phrase for k.
func (n *Normalizer) Enabled(k Kind) bool {
	for _, r := range n.rules {
		if r.kind == k {
			return true
		}
	}
	return false
}

// Fold lower-cases s, strips diacritics, turns punctuation into spaces and
// collapses runs of whitespace.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, out)
	return strings.Join(strings.Fields(out), " ")
}
