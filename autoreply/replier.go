// Package autoreply answers common customer questions while staff is away.
package autoreply

import (
	"context"
	_ "embed"
	"encoding/json"
	"log/slog"
	"shop-chat/contract"
	"shop-chat/domain"
	"shop-chat/errors"
	"sort"
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

const defaultLanguage = "en"

//go:embed rules.json
var defaultRules []byte

// Rule maps keywords per language to a reply per language.
type Rule struct {
	Name     string              `json:"name"`
	Keywords map[string][]string `json:"keywords"`
	Replies  map[string]string   `json:"replies"`
}

type keyword struct {
	rule     int
	language string
}

// KeywordReplier matches whole keywords with a single Aho-Corasick pass
// and answers in the language of the customer when it can tell.
type KeywordReplier struct {
	log      *slog.Logger
	rules    []Rule
	keywords map[string]keyword
	matcher  *goahocorasick.Machine
}

func ParseRules(data []byte) ([]Rule, error) {
	var rules []Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func DefaultRules() ([]Rule, error) {
	return ParseRules(defaultRules)
}

func NewKeywordReplier(log *slog.Logger, rules []Rule) (*KeywordReplier, error) {
	keywords := make(map[string]keyword)
	var patterns []string
	for i, rule := range rules {
		for language, words := range rule.Keywords {
			for _, word := range words {
				normalized := normalize(word)
				if normalized == "" {
					continue
				}
				if _, exists := keywords[normalized]; exists {
					continue
				}
				keywords[normalized] = keyword{rule: i, language: language}
				patterns = append(patterns, normalized)
			}
		}
	}
	if len(patterns) == 0 {
		return nil, errors.ErrEmptyRules
	}

	sort.Strings(patterns)
	m := new(goahocorasick.Machine)
	if err := m.Build(lo.Map(patterns, func(p string, _ int) []rune { return []rune(p) })); err != nil {
		return nil, err
	}
	return &KeywordReplier{log: log, rules: rules, keywords: keywords, matcher: m}, nil
}

// Reply returns the answer of the first rule whose keyword appears as a whole word.
func (r *KeywordReplier) Reply(ctx context.Context, msg domain.Message) (contract.AutoReply, bool) {
	if ctx.Err() != nil || msg.Type != domain.MessageText || msg.SenderRole != domain.RoleCustomer {
		return contract.AutoReply{}, false
	}
	text := []rune(normalize(msg.Content))
	if len(text) == 0 {
		return contract.AutoReply{}, false
	}

	for _, term := range r.matcher.MultiPatternSearch(text, false) {
		if !isWholeWord(text, term.Pos, term.Pos+len(term.Word)) {
			continue
		}
		kw, ok := r.keywords[string(term.Word)]
		if !ok {
			continue
		}
		rule := r.rules[kw.rule]
		language := r.language(msg.Content, kw.language, rule)
		content, ok := rule.Replies[language]
		if !ok || content == "" {
			continue
		}
		return contract.AutoReply{Content: content, Language: language, Rule: rule.Name}, true
	}
	return contract.AutoReply{}, false
}

// language trusts the detector only when it is confident and the rule speaks that language.
// Otherwise the language of the matched keyword wins.
func (r *KeywordReplier) language(content, keywordLanguage string, rule Rule) string {
	info := whatlanggo.Detect(content)
	if info.IsReliable() {
		if detected := info.Lang.Iso6391(); detected != "" {
			if _, ok := rule.Replies[detected]; ok {
				return detected
			}
		}
	}
	if _, ok := rule.Replies[keywordLanguage]; ok {
		return keywordLanguage
	}
	return defaultLanguage
}

// normalize lowercases, strips accents that break matching and collapses separators to one space.
func normalize(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		r = stripAccent(r)
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		case !space && b.Len() > 0:
			b.WriteRune(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

func stripAccent(r rune) rune {
	switch r {
	case 'à', 'â', 'ä':
		return 'a'
	case 'é', 'è', 'ê', 'ë':
		return 'e'
	case 'î', 'ï':
		return 'i'
	case 'ô', 'ö':
		return 'o'
	case 'ù', 'û', 'ü':
		return 'u'
	case 'ç':
		return 'c'
	default:
		return r
	}
}

func isWholeWord(text []rune, start, end int) bool {
	if start > 0 && text[start-1] != ' ' {
		return false
	}
	if end < len(text) && text[end] != ' ' {
		return false
	}
	return true
}
