package form

import (
	"errors"
	"fmt"

	"adminkit/internal/mapping"
	"adminkit/internal/metadata"
	"adminkit/internal/session"
)

// Structural section errors. Both abort structure-building for the whole
// type; a partially-correct tree is never returned.
var (
	ErrUnclosedSection   = errors.New("missing closing section")
	ErrMismatchedSection = errors.New("mismatched section")
)

// Builder produces form structures from registered type descriptors. One
// Build call owns its foreign-type table and options cache; neither is shared
// across requests.
type Builder struct {
	Types   *metadata.Registry
	Plugins *mapping.PluginRegistry

	// EntityOptions resolves option lists for entity-sourced selects.
	EntityOptions func(typeName string) ([]metadata.Option, error)
}

func NewBuilder(types *metadata.Registry, plugins *mapping.PluginRegistry) *Builder {
	return &Builder{Types: types, Plugins: plugins}
}

// Result is the JSON-serializable payload handed to the form-consuming UI.
type Result struct {
	Structure    *Container                   `json:"structure"`
	InputOptions map[string][]metadata.Option `json:"input_options"`
	ForeignTypes map[string]*Container        `json:"foreign_types"`
	Model        map[string]any               `json:"model,omitempty"`
}

// Build assembles the full form payload for a type. With a nil instance the
// model side carries declared defaults (a "create new" form); with one, field
// values are read off it through the same plugin registry the mapper uses.
func (b *Builder) Build(ctx *mapping.Context, t *metadata.TypeDescriptor, instance session.Record) (*Result, error) {
	if t == nil {
		return nil, fmt.Errorf("nil type descriptor")
	}

	foreign := make(map[string]*Container)
	options := make(map[string][]metadata.Option)

	structure, err := b.buildStructure(t, foreign, options, true)
	if err != nil {
		return nil, err
	}

	model, err := b.buildModel(ctx, t, instance)
	if err != nil {
		return nil, err
	}

	return &Result{
		Structure:    structure,
		InputOptions: options,
		ForeignTypes: foreign,
		Model:        model,
	}, nil
}

// buildStructure walks the type's fields in declaration order, maintaining
// the container stack driven by each field's inline section markers.
func (b *Builder) buildStructure(t *metadata.TypeDescriptor, foreign map[string]*Container, options map[string][]metadata.Option, createRoot bool) (*Container, error) {
	nodeType := NodeSubType
	if createRoot {
		nodeType = NodeRoot
	}
	root := &Container{Name: t.Name, NodeType: nodeType}
	stack := []*Container{root}
	top := func() *Container { return stack[len(stack)-1] }

	for i := range t.Fields {
		f := &t.Fields[i]

		// Section openers take effect before the field itself
		for _, m := range f.Sections {
			if !m.Open {
				continue
			}
			child := &Container{Name: m.Name, NodeType: m.Kind}
			top().addContainer(child)
			stack = append(stack, child)
		}

		if f.Type != "" || f.Complex != nil {
			node, err := b.buildFieldNode(f, foreign, options)
			if err != nil {
				return nil, err
			}
			top().addField(node)
		}

		// Closers take effect after
		for _, m := range f.Sections {
			if m.Open {
				continue
			}
			if len(stack) == 1 {
				return nil, fmt.Errorf("%w: type %s field %s closes a %s with no section open",
					ErrMismatchedSection, t.Name, f.Name, m.Kind)
			}
			if top().NodeType != m.Kind {
				return nil, fmt.Errorf("%w: type %s field %s closes a %s but a %s is open",
					ErrMismatchedSection, t.Name, f.Name, m.Kind, top().NodeType)
			}
			stack = stack[:len(stack)-1]
		}
	}

	if len(stack) != 1 {
		return nil, fmt.Errorf("%w: type %s leaves a %s open", ErrUnclosedSection, t.Name, top().NodeType)
	}
	return root, nil
}

func (b *Builder) buildFieldNode(f *metadata.FieldDescriptor, foreign map[string]*Container, options map[string][]metadata.Option) (*Field, error) {
	node := &Field{
		Name:         f.Name,
		DisplayName:  f.Label(),
		Type:         f.Type,
		PropertyType: propertyType(f),
		Attributes:   fieldAttributes(f),
		Visibility:   normalizeVisibility(f),
	}

	if isSelectFamily(f) {
		key, err := b.resolveOptions(f.Select, options)
		if err != nil {
			return nil, err
		}
		node.OptionsKey = key
	}

	if f.Complex != nil {
		node.Complex = &ComplexSettings{
			TypeName: f.Complex.TypeName,
			Storage:  f.Complex.Storage,
			Repeater: f.Complex.Repeater,
			MinItems: f.Complex.MinItems,
			MaxItems: f.Complex.MaxItems,
		}
		if err := b.registerForeignType(f.Complex.TypeName, foreign, options); err != nil {
			return nil, err
		}
	}
	return node, nil
}

// registerForeignType builds the nested structure once per type name. The
// name is registered with a placeholder before recursing so self- and
// mutually-referencing types resolve to "already known" instead of looping.
func (b *Builder) registerForeignType(typeName string, foreign map[string]*Container, options map[string][]metadata.Option) error {
	if isPrimitiveTypeName(typeName) {
		return nil
	}
	if _, known := foreign[typeName]; known {
		return nil
	}
	nested := b.Types.Type(typeName)
	if nested == nil {
		return fmt.Errorf("complex field references unregistered type %s", typeName)
	}

	foreign[typeName] = nil // placeholder: installed before recursion
	sub, err := b.buildStructure(nested, foreign, options, false)
	if err != nil {
		return err
	}
	foreign[typeName] = sub
	return nil
}

// resolveOptions computes the shared cache key and fetches the option list
// the first time the key is seen.
func (b *Builder) resolveOptions(sel *metadata.SelectAttr, options map[string][]metadata.Option) (string, error) {
	if sel == nil {
		return "", nil
	}
	source := sel.OptionsSource
	if source == "" {
		source = sel.RelatedType
	}
	key := sel.Source + ":" + source
	if _, seen := options[key]; seen {
		return key, nil
	}

	var (
		opts []metadata.Option
		err  error
	)
	switch sel.Source {
	case metadata.SourceStatic:
		opts = sel.Options
	case metadata.SourceFunc:
		opts, err = sel.OptionsFunc()
	case metadata.SourceEntity:
		if b.EntityOptions == nil {
			return "", fmt.Errorf("no entity options resolver wired for source %s", source)
		}
		opts, err = b.EntityOptions(source)
	default:
		return "", fmt.Errorf("unknown options source kind %q", sel.Source)
	}
	if err != nil {
		return "", fmt.Errorf("fetch options for %s: %w", key, err)
	}
	if opts == nil {
		opts = []metadata.Option{}
	}
	options[key] = opts
	return key, nil
}

// buildModel produces the value side of the form: declared defaults for a
// create form, plugin-converted instance values for an edit form.
func (b *Builder) buildModel(ctx *mapping.Context, t *metadata.TypeDescriptor, instance session.Record) (map[string]any, error) {
	if instance == nil {
		model := make(map[string]any)
		for i := range t.Fields {
			if t.Fields[i].Default != nil {
				model[t.Fields[i].Name] = t.Fields[i].Default
			}
		}
		return model, nil
	}

	model, _, err := mapping.EntityToModel(ctx, t, t, instance)
	if err != nil {
		return nil, err
	}
	return model, nil
}

// normalizeVisibility merges attribute conditions and the programmatic rule
// tree into the uniform {show, rule, conditions} shape.
func normalizeVisibility(f *metadata.FieldDescriptor) []VisibilityRule {
	var rules []VisibilityRule
	for _, c := range f.Visibility {
		rules = append(rules, VisibilityRule{
			Show: c.Show,
			Rule: "and",
			Conditions: []Condition{
				{Property: c.Property, Operator: "eq", Value: c.Value},
			},
		})
	}
	if f.RuleGroup != nil {
		rules = append(rules, normalizeGroup(f.RuleGroup))
	}
	return rules
}

func normalizeGroup(g *metadata.RuleGroup) VisibilityRule {
	rule := VisibilityRule{Show: g.Show, Rule: g.Operator}
	if rule.Rule == "" {
		rule.Rule = "and"
	}
	for _, n := range g.Rules {
		if n.Group != nil {
			nested := normalizeGroup(n.Group)
			rule.Conditions = append(rule.Conditions, Condition{Group: &nested})
			continue
		}
		op := n.Operator
		if op == "" {
			op = "eq"
		}
		rule.Conditions = append(rule.Conditions, Condition{Property: n.Property, Operator: op, Value: n.Value})
	}
	return rule
}

func isSelectFamily(f *metadata.FieldDescriptor) bool {
	return f.Type == metadata.TypeSelect || f.Type == metadata.TypeMultiSelect
}

// isPrimitiveTypeName filters nested type names that never become foreign
// structures.
func isPrimitiveTypeName(name string) bool {
	switch name {
	case "string", "text", "number", "int", "decimal", "bool", "boolean", "date", "datetime":
		return true
	}
	return false
}

func propertyType(f *metadata.FieldDescriptor) string {
	if f.Complex != nil {
		if f.Complex.Repeater {
			return "list"
		}
		return "object"
	}
	switch f.Type {
	case metadata.TypeNumeric:
		return "number"
	case metadata.TypeBoolean:
		return "bool"
	case metadata.TypeDateTime:
		return "datetime"
	case metadata.TypeMultiSelect:
		return "list"
	case metadata.TypeFile, metadata.TypeImage:
		return "object"
	default:
		return "string"
	}
}

// fieldAttributes copies the field's declared attributes across under its own
// keys, unmodified.
func fieldAttributes(f *metadata.FieldDescriptor) map[string]any {
	attrs := make(map[string]any)
	if f.Required {
		attrs["required"] = true
	}
	if f.ReadOnly {
		attrs["read_only"] = true
	}
	if f.Hidden {
		attrs["hidden"] = true
	}
	if f.Searchable {
		attrs["searchable"] = true
	}
	if f.Width > 0 {
		attrs["width"] = f.Width
	}
	if f.Default != nil {
		attrs["default"] = f.Default
	}
	if n := f.Numeric; n != nil {
		if n.HasMin() {
			attrs["min"] = n.Min
		}
		if n.HasMax() {
			attrs["max"] = n.Max
		}
		attrs["decimal"] = n.Decimal
		if n.DecimalPlaces != metadata.UnlimitedDecimals {
			attrs["decimal_places"] = n.DecimalPlaces
		}
	}
	if fa := f.File; fa != nil {
		if len(fa.AllowedExtensions) > 0 {
			attrs["allowed_extensions"] = fa.AllowedExtensions
		}
		if fa.MaxSize > 0 {
			attrs["max_size"] = fa.MaxSize
		}
		if len(fa.Variants) > 0 {
			attrs["variants"] = fa.Variants
		}
	}
	return attrs
}
