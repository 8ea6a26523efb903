package metadata

import (
	"fmt"
	"math"
)

// Field type identifiers. Plugins are registered under these ids.
const (
	TypeText        = "text"
	TypeLongText    = "longtext"
	TypeBoolean     = "boolean"
	TypeNumeric     = "numeric"
	TypeDateTime    = "datetime"
	TypeSelect      = "select"
	TypeMultiSelect = "multiselect"
	TypeFile        = "file"
	TypeImage       = "image"
)

// Auto-managed field roles, handled by the mapper before the per-field pass.
const (
	AutoCreate    = "create"     // creation timestamp, set once
	AutoUpdate    = "update"     // last-modified timestamp, always overwritten
	AutoUpdatedBy = "updated_by" // acting user id from the mapping context
	AutoSortIndex = "sort_index" // max(sibling)+1 on create
)

// Storage strategies for complex/repeater fields. Exactly one applies per field.
const (
	StorageJSON    = "json"
	StorageRelated = "related"
)

// Sentinels for numeric bounds. A bound equal to its sentinel is not enforced.
var (
	UnboundedMin = math.Inf(-1)
	UnboundedMax = math.Inf(1)
)

// UnlimitedDecimals disables the decimal-place cap on a numeric field.
const UnlimitedDecimals = -1

// NumericAttr configures a numeric field. Zero-value bounds mean "bounded at 0",
// so construct with NewNumericAttr to get the unbounded sentinels.
type NumericAttr struct {
	Min           float64 `json:"min"`
	Max           float64 `json:"max"`
	Decimal       bool    `json:"decimal"`
	DecimalPlaces int     `json:"decimal_places"`
}

func NewNumericAttr() *NumericAttr {
	return &NumericAttr{Min: UnboundedMin, Max: UnboundedMax, DecimalPlaces: UnlimitedDecimals}
}

// HasMin reports whether a lower bound was declared.
func (n *NumericAttr) HasMin() bool { return n.Min != UnboundedMin }

// HasMax reports whether an upper bound was declared.
func (n *NumericAttr) HasMax() bool { return n.Max != UnboundedMax }

// Platform is a bitmask of output platforms for image variants.
type Platform uint8

const (
	PlatformWeb Platform = 1 << iota
	PlatformMobile
	PlatformTablet
)

var platformNames = []struct {
	p    Platform
	name string
}{
	{PlatformWeb, "web"},
	{PlatformMobile, "mobile"},
	{PlatformTablet, "tablet"},
}

// Names returns the names of all platforms present in the mask, in fixed order.
func (p Platform) Names() []string {
	var names []string
	for _, e := range platformNames {
		if p&e.p != 0 {
			names = append(names, e.name)
		}
	}
	return names
}

// ImageVariant declares one named output of an image field: every listed
// format is produced for every platform in the mask, resized to Width/Height
// when they are non-zero.
type ImageVariant struct {
	Name      string   `json:"name"`
	Formats   []string `json:"formats"`
	Width     int      `json:"width,omitempty"`
	Height    int      `json:"height,omitempty"`
	Platforms Platform `json:"platforms"`
}

// FileAttr configures file and image fields.
type FileAttr struct {
	AllowedExtensions []string       `json:"allowed_extensions,omitempty"`
	MaxSize           int64          `json:"max_size,omitempty"`
	Variants          []ImageVariant `json:"variants,omitempty"`
}

// Option is a single select option.
type Option struct {
	Value any    `json:"value"`
	Label string `json:"label"`
}

// OptionsFunc resolves a select field's option list. Stored in the descriptor
// at registration time; never looked up by name at call time.
type OptionsFunc func() ([]Option, error)

// Select option source kinds.
const (
	SourceStatic = "static"
	SourceEntity = "entity"
	SourceFunc   = "func"
)

// SelectAttr configures select and multiselect fields.
//
// For multiselect in relational mode, RelatedType names the collection element
// type and RelatedIDField the property on the element that carries the linked
// id. When RelatedIDField equals the related type's own key field the
// collection is a direct many-to-many (the element is the linked entity);
// otherwise the element is a junction row with its own identity.
type SelectAttr struct {
	Source         string      `json:"source"`
	OptionsSource  string      `json:"options_source,omitempty"`
	Options        []Option    `json:"options,omitempty"`
	OptionsFunc    OptionsFunc `json:"-"`
	RelatedType    string      `json:"related_type,omitempty"`
	RelatedIDField string      `json:"related_id_field,omitempty"`
}

// ComplexAttr configures a nested-object or repeater field.
type ComplexAttr struct {
	TypeName    string `json:"type_name"`
	Storage     string `json:"storage"` // StorageJSON or StorageRelated
	Repeater    bool   `json:"repeater,omitempty"`
	MinItems    int    `json:"min_items,omitempty"`
	MaxItems    int    `json:"max_items,omitempty"`
	Cascade     bool   `json:"cascade,omitempty"`
	ForceDelete bool   `json:"force_delete,omitempty"`
}

// Section kinds for form grouping.
const (
	SectionTab       = "tab"
	SectionContainer = "container"
)

// SectionMarker opens or closes a form section. Markers are declared inline on
// fields: open markers take effect before the field is emitted, close markers
// after.
type SectionMarker struct {
	Kind string `json:"kind"`
	Open bool   `json:"open"`
	Name string `json:"name,omitempty"`
}

// VisibilityCondition is an attribute-based ShowIf/HideIf pair.
type VisibilityCondition struct {
	Show     bool   `json:"show"`
	Property string `json:"property"`
	Value    any    `json:"value"`
}

// RuleGroup is a programmatic visibility rule tree: AND/OR over leaves and
// nested groups.
type RuleGroup struct {
	Operator string     `json:"operator"` // "and" or "or"
	Show     bool       `json:"show"`
	Rules    []RuleNode `json:"rules"`
}

// RuleNode is either a leaf comparison (Property set) or a nested group.
type RuleNode struct {
	Property string     `json:"property,omitempty"`
	Operator string     `json:"operator,omitempty"`
	Value    any        `json:"value,omitempty"`
	Group    *RuleGroup `json:"group,omitempty"`
}

// FieldDescriptor is the per-field metadata unit: a small set of universal
// properties plus optional per-concern payloads. At most one of Numeric /
// File / Select applies, selected by Type; Complex is orthogonal and marks
// the field as nested/repeated.
type FieldDescriptor struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	Required    bool   `json:"required,omitempty"`
	ReadOnly    bool   `json:"read_only,omitempty"`
	Hidden      bool   `json:"hidden,omitempty"`
	Searchable  bool   `json:"searchable,omitempty"`
	Default     any    `json:"default,omitempty"`
	Width       int    `json:"width,omitempty"`
	Type        string `json:"type,omitempty"`
	Auto        string `json:"auto,omitempty"`

	// SkipOnWrite/SkipOnRead exclude the field from one mapping direction.
	SkipOnWrite bool `json:"skip_on_write,omitempty"`
	SkipOnRead  bool `json:"skip_on_read,omitempty"`

	Numeric *NumericAttr `json:"numeric,omitempty"`
	File    *FileAttr    `json:"file,omitempty"`
	Select  *SelectAttr  `json:"select,omitempty"`
	Complex *ComplexAttr `json:"complex,omitempty"`

	Sections   []SectionMarker       `json:"sections,omitempty"`
	Visibility []VisibilityCondition `json:"visibility,omitempty"`
	RuleGroup  *RuleGroup            `json:"rule_group,omitempty"`
}

// IsComplex reports whether the field nests another type.
func (f *FieldDescriptor) IsComplex() bool { return f.Complex != nil }

// IsAuto reports whether the field is auto-managed by the mapper.
func (f *FieldDescriptor) IsAuto() bool { return f.Auto != "" }

// Label returns the display name, falling back to the field name.
func (f *FieldDescriptor) Label() string {
	if f.DisplayName != "" {
		return f.DisplayName
	}
	return f.Name
}

// PostgresType returns the Postgres DDL type for this field.
func (f *FieldDescriptor) PostgresType() string {
	if f.Complex != nil {
		if f.Complex.Storage == StorageJSON {
			return "JSONB"
		}
		return "" // related storage has no column of its own
	}
	switch f.Type {
	case TypeText, TypeLongText, TypeSelect:
		return "TEXT"
	case TypeNumeric:
		if f.Numeric != nil && !f.Numeric.Decimal {
			return "BIGINT"
		}
		return "NUMERIC"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeDateTime:
		return "TIMESTAMPTZ"
	case TypeFile, TypeImage, TypeMultiSelect:
		return "JSONB"
	default:
		return "TEXT"
	}
}

// MapHook runs around a mapping pass. A PreMap hook returning false vetoes the
// main pass; PostMap always runs after it.
type MapHook func(src, dst map[string]any) bool

// TypeDescriptor describes one registered type: its identity, its fields in
// declaration order, and optional expression rules and mapping hooks.
type TypeDescriptor struct {
	Name         string            `json:"name"`
	Table        string            `json:"table,omitempty"`
	KeyField     string            `json:"key_field"`
	KeyGenerated bool              `json:"key_generated,omitempty"`
	Fields       []FieldDescriptor `json:"fields"`
	Rules        []*Rule           `json:"rules,omitempty"`

	PreMap  MapHook `json:"-"`
	PostMap MapHook `json:"-"`
}

// GetField returns a pointer to the field with the given name, or nil.
func (t *TypeDescriptor) GetField(name string) *FieldDescriptor {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			return &t.Fields[i]
		}
	}
	return nil
}

// HasField reports whether the type declares a field with the given name.
func (t *TypeDescriptor) HasField(name string) bool {
	return t.GetField(name) != nil
}

// FieldNames returns all field names in declaration order.
func (t *TypeDescriptor) FieldNames() []string {
	names := make([]string, len(t.Fields))
	for i := range t.Fields {
		names[i] = t.Fields[i].Name
	}
	return names
}

// Validate checks the descriptor's internal consistency. Violations are
// configuration errors: they abort registration and are never retried.
func (t *TypeDescriptor) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("type descriptor has no name")
	}
	if t.KeyField == "" {
		return fmt.Errorf("type %s: no key field declared", t.Name)
	}
	if !t.HasField(t.KeyField) {
		return fmt.Errorf("type %s: key field %s not among fields", t.Name, t.KeyField)
	}
	seen := make(map[string]bool, len(t.Fields))
	for i := range t.Fields {
		f := &t.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("type %s: field %d has no name", t.Name, i)
		}
		if seen[f.Name] {
			return fmt.Errorf("type %s: duplicate field %s", t.Name, f.Name)
		}
		seen[f.Name] = true
		if f.Complex != nil {
			if f.Type != "" {
				return fmt.Errorf("type %s: field %s declares both a field type and a complex attribute", t.Name, f.Name)
			}
			switch f.Complex.Storage {
			case StorageJSON, StorageRelated:
			case "":
				return fmt.Errorf("type %s: complex field %s declares no storage strategy", t.Name, f.Name)
			default:
				return fmt.Errorf("type %s: complex field %s has unknown storage strategy %q", t.Name, f.Name, f.Complex.Storage)
			}
			if f.Complex.TypeName == "" {
				return fmt.Errorf("type %s: complex field %s declares no nested type", t.Name, f.Name)
			}
		}
		if f.Type == TypeMultiSelect && f.Select != nil && f.Select.RelatedType != "" && f.Select.RelatedIDField == "" {
			return fmt.Errorf("type %s: multiselect field %s declares a related type but no related id field", t.Name, f.Name)
		}
		if f.Select != nil && f.Select.Source == SourceFunc && f.Select.OptionsFunc == nil {
			return fmt.Errorf("type %s: select field %s has source %q but no options func", t.Name, f.Name, SourceFunc)
		}
	}
	return nil
}
