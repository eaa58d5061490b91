// Package categorize assigns categories to imported records from
// case-insensitive keyword rules. A rule matches whole words, so "rent"
// matches "RENT PAYMENT" but not "CURRENT".
package categorize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/cleared-dev/finscan/internal/model"
	"github.com/cleared-dev/finscan/internal/store"
)

// Rule maps records containing Match to a category name.
type Rule struct {
	Match    string `yaml:"match" validate:"required"`
	Category string `yaml:"category" validate:"required"`
	// Direction limits the rule to "outflow" or "inflow" records.
	Direction string `yaml:"direction,omitempty" validate:"omitempty,oneof=inflow outflow"`
}

// Rules is the rules file. The first matching rule wins.
type Rules struct {
	Rules []Rule `yaml:"rules" validate:"dive"`
}

// ParseRules decodes and validates a rules document.
func ParseRules(r io.Reader) (Rules, error) {
	var rs Rules
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&rs); err != nil && !errors.Is(err, io.EOF) {
		return Rules{}, fmt.Errorf("parsing rules: %w", err)
	}
	if errs := model.ValidateStruct(rs); len(errs) > 0 {
		return Rules{}, errs
	}
	return rs, nil
}

// LoadRules reads a rules file.
func LoadRules(path string) (Rules, error) {
	f, err := os.Open(path)
	if err != nil {
		return Rules{}, fmt.Errorf("opening rules: %w", err)
	}
	defer f.Close()
	return ParseRules(f)
}

// DefaultRules target the seeded system categories.
func DefaultRules() Rules {
	return Rules{Rules: []Rule{
		{Match: "netflix", Category: "Streaming"},
		{Match: "spotify", Category: "Streaming"},
		{Match: "hulu", Category: "Streaming"},
		{Match: "disney plus", Category: "Streaming"},
		{Match: "github", Category: "Software"},
		{Match: "adobe", Category: "Software"},
		{Match: "payroll", Category: "Salary", Direction: "inflow"},
		{Match: "interest", Category: "Interest", Direction: "inflow"},
		{Match: "refund", Category: "Refunds", Direction: "inflow"},
		{Match: "rent", Category: "Rent", Direction: "outflow"},
		{Match: "mortgage", Category: "Mortgage", Direction: "outflow"},
		{Match: "electric", Category: "Utilities"},
		{Match: "water", Category: "Utilities"},
		{Match: "comcast", Category: "Utilities"},
		{Match: "whole foods", Category: "Groceries"},
		{Match: "trader joe", Category: "Groceries"},
		{Match: "safeway", Category: "Groceries"},
		{Match: "starbucks", Category: "Restaurants"},
		{Match: "doordash", Category: "Restaurants"},
		{Match: "shell", Category: "Fuel"},
		{Match: "chevron", Category: "Fuel"},
		{Match: "uber", Category: "Transportation"},
		{Match: "lyft", Category: "Transportation"},
		{Match: "amazon", Category: "Shopping"},
		{Match: "airbnb", Category: "Travel"},
		{Match: "transfer", Category: "Transfers"},
	}}
}

// Resolver looks categories up by name.
type Resolver interface {
	GetCategoryByName(ctx context.Context, name string) (model.Category, error)
}

type compiledRule struct {
	Rule
	words []string
}

// Categorizer applies rules and caches name lookups.
type Categorizer struct {
	rules []compiledRule
	store Resolver

	mu    sync.Mutex
	cache map[string]int64
}

func New(rules Rules, s Resolver) *Categorizer {
	compiled := make([]compiledRule, 0, len(rules.Rules))
	for _, r := range rules.Rules {
		r.Match = strings.ToLower(strings.TrimSpace(r.Match))
		ws := words(r.Match)
		if len(ws) == 0 {
			continue
		}
		compiled = append(compiled, compiledRule{Rule: r, words: ws})
	}
	return &Categorizer{rules: compiled, store: s, cache: make(map[string]int64)}
}

// Match returns the first rule matching rec.
func (c *Categorizer) Match(rec model.CanonicalRecord) (Rule, bool) {
	merchant := words(rec.MerchantHint)
	desc := words(rec.Description)
	for _, r := range c.rules {
		switch r.Direction {
		case "inflow":
			if !rec.Amount.IsPositive() {
				continue
			}
		case "outflow":
			if !rec.Amount.IsNegative() {
				continue
			}
		}
		if containsRun(merchant, r.words) || containsRun(desc, r.words) {
			return r.Rule, true
		}
	}
	return Rule{}, false
}

// words lowercases s and splits it on anything that is not a letter or digit.
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// containsRun reports whether needle appears in haystack as consecutive words.
func containsRun(haystack, needle []string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j, w := range needle {
			if haystack[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// Categorize returns the category id for rec, or 0 when no rule matches.
func (c *Categorizer) Categorize(ctx context.Context, rec model.CanonicalRecord) (int64, error) {
	r, ok := c.Match(rec)
	if !ok {
		return 0, nil
	}
	return c.resolve(ctx, r.Category)
}

func (c *Categorizer) resolve(ctx context.Context, name string) (int64, error) {
	c.mu.Lock()
	id, ok := c.cache[name]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	cat, err := c.store.GetCategoryByName(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = fmt.Errorf("rule names unknown category %q: %w", name, err)
		}
		return 0, err
	}
	c.mu.Lock()
	c.cache[name] = cat.ID
	c.mu.Unlock()
	return cat.ID, nil
}
