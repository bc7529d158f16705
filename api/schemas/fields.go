package schemas

// FieldKind is the semantic category assigned to a form control. Besides the
// canonical kinds below, a kind may carry a raw name or id attribute which the
// value resolver uses as a lookup key.
type FieldKind string

const (
	KindName    FieldKind = "name"
	KindEmail   FieldKind = "email"
	KindPhone   FieldKind = "phone"
	KindMessage FieldKind = "message"
	KindCountry FieldKind = "country"
	KindUnknown FieldKind = "unknown"
)

// FieldMeta is the accessible metadata read from a form control.
type FieldMeta struct {
	Name        string `json:"name"`
	ID          string `json:"id"`
	Placeholder string `json:"placeholder"`
	Label       string `json:"label"`
	Type        string `json:"type"`
}

// SelectOption is one entry of a dropdown control.
type SelectOption struct {
	Text  string `json:"text"`
	Value string `json:"value"`
	Index int    `json:"index"`
}

// BoundingBox is an element's rendered geometry in CSS pixels.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}
