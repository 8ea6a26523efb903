package form

import (
	"adminkit/internal/metadata"
)

// Column is one list-view column. List and form share option data through the
// same options-cache key scheme.
type Column struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
	Searchable  bool   `json:"searchable,omitempty"`
	Width       int    `json:"width,omitempty"`
	OptionsKey  string `json:"options_key,omitempty"`
}

// Columns derives the flat list-view column set from a type descriptor:
// visible simple fields in declaration order.
func Columns(t *metadata.TypeDescriptor) []Column {
	cols := make([]Column, 0, len(t.Fields))
	for i := range t.Fields {
		f := &t.Fields[i]
		if f.Hidden || f.Complex != nil || f.Type == "" {
			continue
		}
		col := Column{
			Name:        f.Name,
			DisplayName: f.Label(),
			Type:        f.Type,
			Searchable:  f.Searchable,
			Width:       f.Width,
		}
		if isSelectFamily(f) && f.Select != nil {
			source := f.Select.OptionsSource
			if source == "" {
				source = f.Select.RelatedType
			}
			col.OptionsKey = f.Select.Source + ":" + source
		}
		cols = append(cols, col)
	}
	return cols
}
