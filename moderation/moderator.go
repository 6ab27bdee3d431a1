// Package moderation censors forbidden words in chat content.
package moderation

import (
	"log/slog"
	"shop-chat/errors"
	"sort"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

// Moderator masks dictionary words even when customers space them out,
// punctuate them or swap letters for digits ("m.0.r.0.n").
type Moderator struct {
	log     *slog.Logger
	machine *goahocorasick.Machine
	mask    rune
}

// folded is the searchable form of a text: lower-case letters only, each one
// remembering its rune index in the original.
type folded struct {
	runes []rune
	index []int
}

func NewModerator(words []string, mask rune, log *slog.Logger) (*Moderator, error) {
	keys := lo.FilterMap(words, func(w string, _ int) (string, bool) {
		f := fold(w)
		return string(f.runes), len(f.runes) > 0
	})
	if len(keys) == 0 {
		return nil, errors.ErrEmptyWords
	}
	// The double-array trie wants unique keys in lexical order
	keys = lo.Uniq(keys)
	sort.Strings(keys)

	machine := new(goahocorasick.Machine)
	if err := machine.Build(lo.Map(keys, func(k string, _ int) []rune { return []rune(k) })); err != nil {
		return nil, err
	}
	log.Debug("Moderator ready", "patterns", len(keys))
	return &Moderator{log: log, machine: machine, mask: mask}, nil
}

// Censor returns content with every match masked, and the dictionary words found.
// Runes outside a match are kept as they were.
func (m *Moderator) Censor(content string) (string, []string) {
	f := fold(content)
	if len(f.runes) == 0 {
		return content, nil
	}
	hits := m.machine.MultiPatternSearch(f.runes, false)
	if len(hits) == 0 {
		return content, nil
	}

	out := []rune(content)
	words := make([]string, 0, len(hits))
	for _, hit := range hits {
		end := hit.Pos + len(hit.Word)
		if hit.Pos < 0 || end > len(f.index) {
			continue
		}
		for i := f.index[hit.Pos]; i <= f.index[end-1]; i++ {
			out[i] = m.mask
		}
		words = append(words, string(hit.Word))
	}
	return string(out), words
}

func fold(s string) folded {
	src := []rune(s)
	f := folded{runes: make([]rune, 0, len(src)), index: make([]int, 0, len(src))}
	for i, r := range src {
		r = unleet(r)
		if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
			continue
		}
		f.runes = append(f.runes, unicode.ToLower(r))
		f.index = append(f.index, i)
	}
	return f
}

func unleet(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	}
	return r
}
