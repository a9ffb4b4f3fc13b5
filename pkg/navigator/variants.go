package navigator

import (
	"fmt"
	"strings"
)

// Replacement substitutes every occurrence of Old with New.
type Replacement struct {
	Old string
	New string
}

// VariantRule is an ordered list of replacements producing one alternate
// spelling of a group name. An empty rule is the name itself.
type VariantRule []Replacement

func (r VariantRule) Apply(group string) string {
	for _, rep := range r {
		group = strings.ReplaceAll(group, rep.Old, rep.New)
	}
	return group
}

func (r VariantRule) String() string {
	parts := make([]string, 0, len(r))
	for _, rep := range r {
		parts = append(parts, rep.Old+"="+rep.New)
	}
	return strings.Join(parts, ";")
}

// DefaultVariantRules are the alternate group spellings used by the
// schedule site of Institute No. 8.
var DefaultVariantRules = []string{
	"",
	"М8О=№80",
	"М8О=№80;БВ=5B",
	"М8О=№80;БВ=5B-24",
}

// ParseVariantRules parses rules written as "old=new;old=new".
func ParseVariantRules(specs []string) ([]VariantRule, error) {
	rules := make([]VariantRule, 0, len(specs))
	for _, spec := range specs {
		var rule VariantRule
		for _, part := range strings.Split(spec, ";") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			i := strings.Index(part, "=")
			if i <= 0 {
				return nil, fmt.Errorf("invalid variant rule %q: expected old=new", part)
			}
			rule = append(rule, Replacement{Old: part[:i], New: part[i+1:]})
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Variants expands group into its distinct spellings, in rule order. The
// name itself always comes first.
func Variants(group string, rules []VariantRule) []string {
	seen := map[string]bool{group: true}
	out := []string{group}
	for _, r := range rules {
		v := r.Apply(group)
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
