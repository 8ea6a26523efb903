package mapping

import (
	"adminkit/internal/metadata"
)

// PluginRegistry resolves field-type ids to their plugin instances. Built once
// at process start and read-only afterwards.
type PluginRegistry struct {
	plugins map[string]Plugin
}

// NewPluginRegistry returns a registry with all built-in plugins installed.
func NewPluginRegistry() *PluginRegistry {
	r := &PluginRegistry{plugins: make(map[string]Plugin)}
	r.Register(metadata.TypeText, &TextPlugin{})
	r.Register(metadata.TypeLongText, &TextPlugin{})
	r.Register(metadata.TypeBoolean, &BooleanPlugin{})
	r.Register(metadata.TypeNumeric, &NumericPlugin{})
	r.Register(metadata.TypeDateTime, &DateTimePlugin{})
	r.Register(metadata.TypeSelect, &SelectPlugin{})
	r.Register(metadata.TypeMultiSelect, &MultiSelectPlugin{})
	r.Register(metadata.TypeFile, &FilePlugin{})
	r.Register(metadata.TypeImage, &ImagePlugin{})
	return r
}

// Register installs a plugin under a field-type id. Call before the registry
// is shared; lookups are unsynchronized by design.
func (r *PluginRegistry) Register(typeID string, p Plugin) {
	r.plugins[typeID] = p
}

// Plugin returns the plugin for the field's type id, or nil when the field
// carries no resolvable type.
func (r *PluginRegistry) Plugin(field *metadata.FieldDescriptor) Plugin {
	if field.Type == "" {
		return nil
	}
	return r.plugins[field.Type]
}

// Validate applies the base required check, then delegates to the field's
// plugin.
func (r *PluginRegistry) Validate(value any, field *metadata.FieldDescriptor) (bool, []string) {
	if isEmpty(value) {
		if field.Required {
			return false, []string{requiredMessage(field)}
		}
		return true, nil
	}
	p := r.Plugin(field)
	if p == nil {
		return true, nil
	}
	return p.Validate(value, field)
}
