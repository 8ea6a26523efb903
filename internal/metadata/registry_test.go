package metadata

import (
	"strings"
	"testing"
)

func productType() *TypeDescriptor {
	return &TypeDescriptor{
		Name:     "product",
		Table:    "products",
		KeyField: "id",
		Fields: []FieldDescriptor{
			{Name: "id", Type: TypeText},
			{Name: "title", Type: TypeText, Required: true},
			{Name: "price", Type: TypeNumeric, Numeric: NewNumericAttr()},
		},
	}
}

func TestRegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(productType()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if reg.Type("product") == nil {
		t.Fatal("registered type not found")
	}
	if reg.Type("missing") != nil {
		t.Fatal("lookup of unknown type should return nil")
	}
	if len(reg.All()) != 1 {
		t.Fatalf("expected 1 registered type, got %d", len(reg.All()))
	}
}

func TestRegisterDuplicateFails(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(productType()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(productType()); err == nil {
		t.Fatal("duplicate registration should fail")
	}
}

func TestValidateComplexStorage(t *testing.T) {
	tests := []struct {
		name    string
		complex *ComplexAttr
		wantErr string
	}{
		{"json ok", &ComplexAttr{TypeName: "address", Storage: StorageJSON}, ""},
		{"related ok", &ComplexAttr{TypeName: "address", Storage: StorageRelated}, ""},
		{"no storage", &ComplexAttr{TypeName: "address"}, "no storage strategy"},
		{"unknown storage", &ComplexAttr{TypeName: "address", Storage: "both"}, "unknown storage strategy"},
		{"no nested type", &ComplexAttr{Storage: StorageJSON}, "no nested type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			td := &TypeDescriptor{
				Name:     "customer",
				KeyField: "id",
				Fields: []FieldDescriptor{
					{Name: "id", Type: TypeText},
					{Name: "address", Complex: tt.complex},
				},
			}
			err := td.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateRejectsFieldTypePlusComplex(t *testing.T) {
	td := &TypeDescriptor{
		Name:     "customer",
		KeyField: "id",
		Fields: []FieldDescriptor{
			{Name: "id", Type: TypeText},
			{Name: "address", Type: TypeText, Complex: &ComplexAttr{TypeName: "address", Storage: StorageJSON}},
		},
	}
	if err := td.Validate(); err == nil {
		t.Fatal("field with both field type and complex attribute should fail validation")
	}
}

func TestRegisterCompilesRules(t *testing.T) {
	td := productType()
	td.Rules = []*Rule{
		{Field: "price", Kind: RuleValidate, Expression: "record.price >= 0", Message: "price must not be negative"},
	}
	reg := NewRegistry()
	if err := reg.Register(td); err != nil {
		t.Fatalf("register with rule: %v", err)
	}

	out, err := td.Rules[0].Run(RuleEnv(map[string]any{"price": 10.0}, nil, true))
	if err != nil {
		t.Fatalf("run rule: %v", err)
	}
	if out != true {
		t.Fatalf("expected rule to pass, got %v", out)
	}
}

func TestRegisterRejectsBadRule(t *testing.T) {
	td := productType()
	td.Rules = []*Rule{{Field: "price", Kind: RuleValidate, Expression: "record.price >="}}
	reg := NewRegistry()
	if err := reg.Register(td); err == nil {
		t.Fatal("unparsable rule expression should fail registration")
	}
}

func TestNumericSentinels(t *testing.T) {
	n := NewNumericAttr()
	if n.HasMin() || n.HasMax() {
		t.Fatal("fresh numeric attr should be unbounded")
	}
	n.Min = 0
	n.Max = 100
	if !n.HasMin() || !n.HasMax() {
		t.Fatal("explicit bounds should be detected")
	}
}

func TestPlatformNames(t *testing.T) {
	mask := PlatformWeb | PlatformTablet
	names := mask.Names()
	if len(names) != 2 || names[0] != "web" || names[1] != "tablet" {
		t.Fatalf("unexpected platform names: %v", names)
	}
}
