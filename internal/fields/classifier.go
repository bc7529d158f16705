// Package fields turns form control metadata into a semantic field kind and
// resolves the value that should be entered for it.
package fields

import (
	"strings"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"golang.org/x/text/cases"
)

// ClassificationRule maps a set of substrings (or an input type) to a kind.
type ClassificationRule struct {
	Kind     schemas.FieldKind
	Contains []string
	// InputType matches the control's type attribute exactly, if set.
	InputType string
}

// ClassificationRules is evaluated top to bottom and the first match wins.
// Email precedes name so "email_name" style controls are classified as email.
var ClassificationRules = []ClassificationRule{
	{Kind: schemas.KindEmail, Contains: []string{"email"}, InputType: "email"},
	{Kind: schemas.KindPhone, Contains: []string{"phone", "tel"}},
	{Kind: schemas.KindName, Contains: []string{"name"}},
	{Kind: schemas.KindMessage, Contains: []string{"message", "comment"}},
}

// fold lower-cases s for caseless substring tests. A Caser is stateful and
// must not be shared between goroutines, so each call builds its own.
func fold(s string) string {
	return cases.Fold().String(s)
}

// Classify derives the field kind for a control. It never fails: controls with
// no usable metadata are reported as unknown.
func Classify(meta schemas.FieldMeta) schemas.FieldKind {
	combined := fold(strings.Join([]string{meta.Name, meta.ID, meta.Placeholder, meta.Label}, " "))
	inputType := strings.ToLower(strings.TrimSpace(meta.Type))

	for _, rule := range ClassificationRules {
		if rule.InputType != "" && inputType == rule.InputType {
			return rule.Kind
		}
		for _, needle := range rule.Contains {
			if strings.Contains(combined, needle) {
				return rule.Kind
			}
		}
	}

	if name := strings.TrimSpace(meta.Name); name != "" {
		return schemas.FieldKind(name)
	}
	if id := strings.TrimSpace(meta.ID); id != "" {
		return schemas.FieldKind(id)
	}
	return schemas.KindUnknown
}
