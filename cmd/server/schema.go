package main

import (
	"adminkit/internal/metadata"
)

// registerTypes wires the catalog schema. Descriptors are static: the registry
// is built once here and treated as read-only by every handler.
func registerTypes() (*metadata.Registry, error) {
	reg := metadata.NewRegistry()

	for _, t := range []*metadata.TypeDescriptor{
		categoryType(),
		tagType(),
		productTagType(),
		productSpecsType(),
		productVariantType(),
		productType(),
	} {
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func categoryType() *metadata.TypeDescriptor {
	return &metadata.TypeDescriptor{
		Name:         "category",
		Table:        "categories",
		KeyField:     "id",
		KeyGenerated: true,
		Fields: []metadata.FieldDescriptor{
			{Name: "id", Type: metadata.TypeText, Hidden: true},
			{Name: "name", DisplayName: "Name", Type: metadata.TypeText, Required: true, Searchable: true},
			{Name: "created_at", Type: metadata.TypeDateTime, Auto: metadata.AutoCreate, Hidden: true},
		},
	}
}

func tagType() *metadata.TypeDescriptor {
	return &metadata.TypeDescriptor{
		Name:         "tag",
		Table:        "tags",
		KeyField:     "id",
		KeyGenerated: true,
		Fields: []metadata.FieldDescriptor{
			{Name: "id", Type: metadata.TypeText, Hidden: true},
			{Name: "name", DisplayName: "Name", Type: metadata.TypeText, Required: true, Searchable: true},
		},
	}
}

// productTagType is the junction between products and tags. Rows carry their
// own identity so junction-level data survives reconciliation.
func productTagType() *metadata.TypeDescriptor {
	return &metadata.TypeDescriptor{
		Name:         "product_tag",
		Table:        "product_tags",
		KeyField:     "id",
		KeyGenerated: true,
		Fields: []metadata.FieldDescriptor{
			{Name: "id", Type: metadata.TypeText, Hidden: true},
			{Name: "product_id", Type: metadata.TypeText, Hidden: true},
			{Name: "tag_id", Type: metadata.TypeText, Required: true},
		},
	}
}

// productSpecsType has no table: it only ever lives inside a product's JSON
// specs column.
func productSpecsType() *metadata.TypeDescriptor {
	return &metadata.TypeDescriptor{
		Name:     "product_specs",
		KeyField: "id",
		Fields: []metadata.FieldDescriptor{
			{Name: "id", Type: metadata.TypeText, Hidden: true},
			{Name: "weight_grams", DisplayName: "Weight (g)", Type: metadata.TypeNumeric,
				Numeric: metadata.NewNumericAttr()},
			{Name: "material", DisplayName: "Material", Type: metadata.TypeText},
			{Name: "country_of_origin", DisplayName: "Country of origin", Type: metadata.TypeText},
		},
	}
}

func productVariantType() *metadata.TypeDescriptor {
	sku := metadata.NewNumericAttr()
	sku.Min = 0

	return &metadata.TypeDescriptor{
		Name:         "product_variant",
		Table:        "product_variants",
		KeyField:     "id",
		KeyGenerated: true,
		Fields: []metadata.FieldDescriptor{
			{Name: "id", Type: metadata.TypeText, Hidden: true},
			{Name: "product_id", Type: metadata.TypeText, Hidden: true},
			{Name: "label", DisplayName: "Label", Type: metadata.TypeText, Required: true},
			{Name: "stock", DisplayName: "Stock", Type: metadata.TypeNumeric, Numeric: sku},
			{Name: "sort_index", Type: metadata.TypeNumeric, Auto: metadata.AutoSortIndex, Hidden: true,
				Numeric: metadata.NewNumericAttr()},
		},
	}
}

func productType() *metadata.TypeDescriptor {
	price := metadata.NewNumericAttr()
	price.Min = 0
	price.Decimal = true
	price.DecimalPlaces = 2

	stock := metadata.NewNumericAttr()
	stock.Min = 0

	return &metadata.TypeDescriptor{
		Name:         "product",
		Table:        "products",
		KeyField:     "id",
		KeyGenerated: true,
		Fields: []metadata.FieldDescriptor{
			{Name: "id", Type: metadata.TypeText, Hidden: true},
			{
				Name: "name", DisplayName: "Name", Type: metadata.TypeText,
				Required: true, Searchable: true, Width: 200,
				Sections: []metadata.SectionMarker{
					{Kind: metadata.SectionTab, Open: true, Name: "General"},
				},
			},
			{Name: "description", DisplayName: "Description", Type: metadata.TypeLongText},
			{
				Name: "category_id", DisplayName: "Category", Type: metadata.TypeSelect,
				Select: &metadata.SelectAttr{
					Source:        metadata.SourceEntity,
					OptionsSource: "category",
				},
			},
			{
				Name: "tags", DisplayName: "Tags", Type: metadata.TypeMultiSelect,
				Select: &metadata.SelectAttr{
					Source:         metadata.SourceEntity,
					OptionsSource:  "tag",
					RelatedType:    "product_tag",
					RelatedIDField: "tag_id",
				},
			},
			{
				Name: "active", DisplayName: "Active", Type: metadata.TypeBoolean, Default: true,
				Sections: []metadata.SectionMarker{
					{Kind: metadata.SectionTab, Open: false},
				},
			},
			{
				Name: "price", DisplayName: "Price", Type: metadata.TypeNumeric,
				Required: true, Searchable: true, Numeric: price,
				Sections: []metadata.SectionMarker{
					{Kind: metadata.SectionTab, Open: true, Name: "Inventory"},
				},
			},
			{Name: "stock", DisplayName: "Stock", Type: metadata.TypeNumeric, Numeric: stock},
			{
				Name: "sale_price", DisplayName: "Sale price", Type: metadata.TypeNumeric,
				Numeric: price,
				Visibility: []metadata.VisibilityCondition{
					{Show: true, Property: "on_sale", Value: true},
				},
			},
			{
				Name: "on_sale", DisplayName: "On sale", Type: metadata.TypeBoolean, Default: false,
				Sections: []metadata.SectionMarker{
					{Kind: metadata.SectionTab, Open: false},
				},
			},
			{
				Name: "specs", DisplayName: "Specifications",
				Complex: &metadata.ComplexAttr{
					TypeName: "product_specs",
					Storage:  metadata.StorageJSON,
				},
				Sections: []metadata.SectionMarker{
					{Kind: metadata.SectionTab, Open: true, Name: "Details"},
					{Kind: metadata.SectionContainer, Open: true, Name: "Specs"},
				},
			},
			{
				Name: "variants", DisplayName: "Variants",
				Complex: &metadata.ComplexAttr{
					TypeName: "product_variant",
					Storage:  metadata.StorageRelated,
					Repeater: true,
					MaxItems: 50,
					Cascade:  true,
				},
				Sections: []metadata.SectionMarker{
					{Kind: metadata.SectionContainer, Open: false},
				},
			},
			{
				Name: "photo", DisplayName: "Photo", Type: metadata.TypeImage,
				File: &metadata.FileAttr{
					AllowedExtensions: []string{".jpg", ".jpeg", ".png"},
					MaxSize:           5 << 20,
					Variants: []metadata.ImageVariant{
						{Name: "thumb", Formats: []string{"jpg"}, Width: 160, Height: 160,
							Platforms: metadata.PlatformWeb | metadata.PlatformMobile},
						{Name: "detail", Formats: []string{"jpg", "png"}, Width: 1024,
							Platforms: metadata.PlatformWeb},
					},
				},
				Sections: []metadata.SectionMarker{
					{Kind: metadata.SectionTab, Open: false},
				},
			},
			// Written by the compute rule below, never by the client.
			{Name: "display_name", Type: metadata.TypeText, Hidden: true, SkipOnWrite: true},
			{Name: "created_at", Type: metadata.TypeDateTime, Auto: metadata.AutoCreate, Hidden: true},
			{Name: "updated_at", Type: metadata.TypeDateTime, Auto: metadata.AutoUpdate, Hidden: true},
			{Name: "updated_by", Type: metadata.TypeText, Auto: metadata.AutoUpdatedBy, Hidden: true},
		},
		Rules: []*metadata.Rule{
			{
				Field:      "sale_price",
				Kind:       metadata.RuleValidate,
				Expression: `record.on_sale != true || (record.sale_price ?? 0) < (record.price ?? 0)`,
				Message:    "Sale price must be below the regular price",
			},
			{
				Field:      "display_name",
				Kind:       metadata.RuleCompute,
				Expression: `(record.name ?? "") + (record.on_sale == true ? " (sale)" : "")`,
			},
		},
	}
}
