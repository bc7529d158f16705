package fields

import (
	"strings"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

// FallbackValue is returned when no tier produces a value.
const FallbackValue = "N/A"

// CanonicalColumns maps each canonical kind to the details sheet header that
// carries its value.
var CanonicalColumns = map[schemas.FieldKind]string{
	schemas.KindName:    "Name",
	schemas.KindEmail:   "Email",
	schemas.KindPhone:   "Phone",
	schemas.KindMessage: "Message",
	schemas.KindCountry: "Country",
}

// ResolutionTier identifies which step of the cascade produced a value.
type ResolutionTier string

const (
	TierCanonicalColumn ResolutionTier = "canonical_column"
	TierRawColumn       ResolutionTier = "raw_column"
	TierDefault         ResolutionTier = "default"
	TierSmartDefault    ResolutionTier = "smart_default"
	TierFallback        ResolutionTier = "fallback"
)

// ResolutionOrder is the fixed order the resolver walks.
var ResolutionOrder = []ResolutionTier{
	TierCanonicalColumn,
	TierRawColumn,
	TierDefault,
	TierSmartDefault,
	TierFallback,
}

// Resolver picks the value to enter for a field kind. It holds only
// read-only tables and is safe for concurrent use.
type Resolver struct {
	defaults      map[string]string
	smartDefaults []config.SmartDefault
}

// NewResolver builds a resolver over the configured fallback tables.
func NewResolver(cfg config.FieldsConfig) *Resolver {
	smart := make([]config.SmartDefault, 0, len(cfg.SmartDefaults))
	for _, sd := range cfg.SmartDefaults {
		key := strings.ToLower(strings.TrimSpace(sd.Key))
		if key == "" || strings.TrimSpace(sd.Value) == "" {
			continue
		}
		smart = append(smart, config.SmartDefault{Key: key, Value: sd.Value})
	}
	defaults := make(map[string]string, len(cfg.Defaults))
	for k, v := range cfg.Defaults {
		if strings.TrimSpace(v) != "" {
			defaults[k] = v
		}
	}
	return &Resolver{defaults: defaults, smartDefaults: smart}
}

// Resolve returns the value for kind. The result is never empty.
func (r *Resolver) Resolve(kind schemas.FieldKind, record schemas.TargetRecord) string {
	v, _ := r.ResolveWithTier(kind, record)
	return v
}

// ResolveWithTier is Resolve that also reports which tier matched.
func (r *Resolver) ResolveWithTier(kind schemas.FieldKind, record schemas.TargetRecord) (string, ResolutionTier) {
	raw := strings.TrimSpace(string(kind))
	if raw == "" {
		raw = string(schemas.KindUnknown)
	}
	lower := strings.ToLower(raw)

	for _, tier := range ResolutionOrder {
		switch tier {
		case TierCanonicalColumn:
			if column, ok := CanonicalColumns[schemas.FieldKind(lower)]; ok {
				if v, ok := present(record, column); ok {
					return v, tier
				}
			}
		case TierRawColumn:
			if v, ok := present(record, raw); ok {
				return v, tier
			}
		case TierDefault:
			if v, ok := r.defaults[raw]; ok {
				return v, tier
			}
		case TierSmartDefault:
			for _, sd := range r.smartDefaults {
				if strings.Contains(lower, sd.Key) || strings.Contains(sd.Key, lower) {
					return sd.Value, tier
				}
			}
		case TierFallback:
			return FallbackValue, tier
		}
	}
	return FallbackValue, TierFallback
}

// present returns the trimmed shared value for key when it is non-blank.
func present(record schemas.TargetRecord, key string) (string, bool) {
	v, ok := record.Field(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}
