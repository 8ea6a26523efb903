// Package form builds serializable UI structure trees from type descriptors.
package form

// Container node types.
const (
	NodeRoot      = "root"
	NodeTab       = "tab"
	NodeContainer = "container"
	NodeSubType   = "subtype"
)

// Node is one entry in a container's ordered child list: either a nested
// container or a field.
type Node struct {
	Container *Container `json:"container,omitempty"`
	Field     *Field     `json:"field,omitempty"`
}

// Container groups child nodes under a named section.
type Container struct {
	Name       string         `json:"name"`
	NodeType   string         `json:"node_type"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Children   []Node         `json:"children"`
}

func (c *Container) addContainer(child *Container) {
	c.Children = append(c.Children, Node{Container: child})
}

func (c *Container) addField(f *Field) {
	c.Children = append(c.Children, Node{Field: f})
}

// Field is a leaf form node.
type Field struct {
	Name         string           `json:"name"`
	DisplayName  string           `json:"display_name"`
	Type         string           `json:"type"`
	PropertyType string           `json:"property_type"`
	Attributes   map[string]any   `json:"attributes,omitempty"`
	OptionsKey   string           `json:"options_key,omitempty"`
	Complex      *ComplexSettings `json:"complex,omitempty"`
	Visibility   []VisibilityRule `json:"visibility,omitempty"`
}

// ComplexSettings references the nested type by name only; the structure
// itself lives in the foreign-type table.
type ComplexSettings struct {
	TypeName string `json:"type_name"`
	Storage  string `json:"storage"`
	Repeater bool   `json:"repeater,omitempty"`
	MinItems int    `json:"min_items,omitempty"`
	MaxItems int    `json:"max_items,omitempty"`
}

// VisibilityRule is the uniform normalized shape for both attribute-based
// ShowIf/HideIf conditions and programmatic rule trees.
type VisibilityRule struct {
	Show       bool        `json:"show"`
	Rule       string      `json:"rule"` // "and" or "or"
	Conditions []Condition `json:"conditions"`
}

// Condition is a leaf comparison or a nested group.
type Condition struct {
	Property string          `json:"property,omitempty"`
	Operator string          `json:"operator,omitempty"`
	Value    any             `json:"value,omitempty"`
	Group    *VisibilityRule `json:"group,omitempty"`
}
