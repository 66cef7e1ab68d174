// Package suggest proposes concepts for a question by looking for concept
// names and aliases inside its prompt.
package suggest

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/jdkato/prose/v2"

	"github.com/torenunez/lerni/internal/storage/models"
)

// Match is a concept whose name or alias occurs in the prompt.
type Match struct {
	Concept models.Concept
	// Term is the name or alias that matched.
	Term string
	// Words is the length of Term in tokens. Longer terms rank first.
	Words int
}

// Suggest returns the concepts mentioned in prompt, best match first.
// Matching is on whole tokens and ignores case and punctuation, so "TCP"
// matches "tcp?" but not "tcpdump".
func Suggest(prompt string, concepts []models.Concept) ([]Match, error) {
	words, err := tokenize(prompt)
	if err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, nil
	}

	var matches []Match
	grams := map[int]map[string]bool{}
	for _, c := range concepts {
		best := Match{}
		for _, term := range append([]string{c.Name}, c.Aliases...) {
			termWords, err := tokenize(term)
			if err != nil {
				return nil, err
			}
			n := len(termWords)
			if n == 0 || n > len(words) || n <= best.Words {
				continue
			}
			if grams[n] == nil {
				grams[n] = ngrams(words, n)
			}
			if grams[n][strings.Join(termWords, " ")] {
				best = Match{Concept: c, Term: term, Words: n}
			}
		}
		if best.Words > 0 {
			matches = append(matches, best)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Words != matches[j].Words {
			return matches[i].Words > matches[j].Words
		}
		return strings.ToLower(matches[i].Concept.Name) < strings.ToLower(matches[j].Concept.Name)
	})
	return matches, nil
}

// tokenize lowercases text and keeps the word tokens.
func tokenize(text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	doc, err := prose.NewDocument(strings.ToLower(text),
		prose.WithSegmentation(false),
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to tokenize %q: %w", text, err)
	}

	var words []string
	for _, tok := range doc.Tokens() {
		if isWord(tok.Text) {
			words = append(words, tok.Text)
		}
	}
	return words, nil
}

func isWord(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func ngrams(words []string, n int) map[string]bool {
	out := make(map[string]bool, len(words))
	for i := 0; i+n <= len(words); i++ {
		out[strings.Join(words[i:i+n], " ")] = true
	}
	return out
}
