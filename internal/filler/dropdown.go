package filler

import (
	"strings"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"golang.org/x/text/cases"
)

// DropdownTier names one matching strategy for dropdown options.
type DropdownTier string

const (
	TierExact       DropdownTier = "exact"
	TierContains    DropdownTier = "contains"
	TierFirstOption DropdownTier = "first_non_placeholder"
)

// DropdownTiers is the fixed order in which option matching is attempted.
var DropdownTiers = []DropdownTier{TierExact, TierContains, TierFirstOption}

// PlaceholderTokens mark option labels that are prompts rather than choices.
var PlaceholderTokens = []string{"select", "choose", "--", "please"}

// Candidate is an option selected by a particular tier.
type Candidate struct {
	Option schemas.SelectOption
	Tier   DropdownTier
}

// RankOptions returns every option that satisfies a tier, grouped by tier in
// DropdownTiers order and by document order within a tier. The first entry
// is the preferred choice; later entries are retried if selecting it fails.
func RankOptions(options []schemas.SelectOption, value string) []Candidate {
	want := cases.Fold().String(strings.TrimSpace(value))
	labels := make([]string, len(options))
	for i, o := range options {
		labels[i] = cases.Fold().String(strings.TrimSpace(o.Text))
	}

	var out []Candidate
	for _, tier := range DropdownTiers {
		for i, o := range options {
			if matchesTier(tier, labels[i], want) {
				out = append(out, Candidate{Option: o, Tier: tier})
			}
		}
	}
	return out
}

func matchesTier(tier DropdownTier, label, want string) bool {
	switch tier {
	case TierExact:
		return label == want
	case TierContains:
		return want != "" && strings.Contains(label, want)
	case TierFirstOption:
		return label != "" && !isPlaceholder(label)
	}
	return false
}

func isPlaceholder(label string) bool {
	for _, token := range PlaceholderTokens {
		if strings.Contains(label, token) {
			return true
		}
	}
	return false
}
