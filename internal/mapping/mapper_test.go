package mapping

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"adminkit/internal/metadata"
	"adminkit/internal/session"
)

func newTestRegistry(t *testing.T, types ...*metadata.TypeDescriptor) *metadata.Registry {
	t.Helper()
	reg := metadata.NewRegistry()
	for _, td := range types {
		if err := reg.Register(td); err != nil {
			t.Fatalf("register %s: %v", td.Name, err)
		}
	}
	return reg
}

func newTestContext(reg *metadata.Registry, sess session.Session) *Context {
	return NewContext(context.Background(), NewPluginRegistry(), reg, sess)
}

func articleType() *metadata.TypeDescriptor {
	price := metadata.NewNumericAttr()
	price.Min = 0
	price.Max = 100
	price.Decimal = true
	price.DecimalPlaces = 2

	return &metadata.TypeDescriptor{
		Name:         "article",
		Table:        "articles",
		KeyField:     "id",
		KeyGenerated: true,
		Fields: []metadata.FieldDescriptor{
			{Name: "id", Type: metadata.TypeText},
			{Name: "title", DisplayName: "Title", Type: metadata.TypeText, Required: true},
			{Name: "price", DisplayName: "Price", Type: metadata.TypeNumeric, Numeric: price},
			{Name: "published", Type: metadata.TypeBoolean},
			{Name: "published_at", Type: metadata.TypeDateTime},
			{Name: "status", Type: metadata.TypeSelect, Select: &metadata.SelectAttr{
				Source: metadata.SourceStatic,
				Options: []metadata.Option{
					{Value: "draft", Label: "Draft"},
					{Value: "live", Label: "Live"},
				},
			}},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	reg := newTestRegistry(t, articleType())
	ctx := newTestContext(reg, session.NewMemory())
	at := reg.Type("article")

	model := session.Record{
		"id":           "a1",
		"title":        "First",
		"price":        19.99,
		"published":    true,
		"published_at": "2026-03-01T10:00:00Z",
		"status":       "live",
	}

	entity, errs, err := ModelToEntity(ctx, at, at, model, nil)
	if err != nil {
		t.Fatalf("map to entity: %v", err)
	}
	if !errs.Empty() {
		t.Fatalf("unexpected validation errors: %v", errs.All())
	}

	back, errs, err := EntityToModel(ctx, at, at, entity)
	if err != nil {
		t.Fatalf("map to model: %v", err)
	}
	if !errs.Empty() {
		t.Fatalf("unexpected presentation errors: %v", errs.All())
	}

	if back["title"] != "First" || back["status"] != "live" || back["published"] != true {
		t.Fatalf("round trip lost simple values: %v", back)
	}
	if back["price"] != 19.99 {
		t.Fatalf("expected price 19.99, got %v", back["price"])
	}
	want, _ := time.Parse(time.RFC3339, "2026-03-01T10:00:00Z")
	if got, ok := back["published_at"].(time.Time); !ok || !got.Equal(want) {
		t.Fatalf("expected published_at %v, got %v", want, back["published_at"])
	}
}

func TestPartialUpdatePreservesAbsentFields(t *testing.T) {
	reg := newTestRegistry(t, articleType())
	ctx := newTestContext(reg, session.NewMemory())
	at := reg.Type("article")

	existing := session.Record{"id": "a1", "title": "Original", "price": 10.0}
	ctx.RequestProps = map[string]bool{"price": true}

	entity, errs, err := ModelToEntity(ctx, at, at, session.Record{"price": 25.0}, existing)
	if err != nil {
		t.Fatalf("map to entity: %v", err)
	}
	if !errs.Empty() {
		t.Fatalf("unexpected validation errors: %v", errs.All())
	}
	if entity["title"] != "Original" {
		t.Fatalf("absent field should survive the update, got title %v", entity["title"])
	}
	if entity["price"] != 25.0 {
		t.Fatalf("present field should change, got price %v", entity["price"])
	}
}

func TestUpdateNeverChangesKey(t *testing.T) {
	reg := newTestRegistry(t, articleType())
	ctx := newTestContext(reg, session.NewMemory())
	at := reg.Type("article")

	existing := session.Record{"id": "a1", "title": "Original"}
	model := session.Record{"id": "evil", "title": "Renamed"}

	entity, _, err := ModelToEntity(ctx, at, at, model, existing)
	if err != nil {
		t.Fatalf("map to entity: %v", err)
	}
	if entity["id"] != "a1" {
		t.Fatalf("identity must not change on update, got %v", entity["id"])
	}
	if entity["title"] != "Renamed" {
		t.Fatalf("other fields should still map, got %v", entity["title"])
	}
}

func TestRequiredValidation(t *testing.T) {
	reg := newTestRegistry(t, articleType())
	ctx := newTestContext(reg, session.NewMemory())
	at := reg.Type("article")

	_, errs, err := ModelToEntity(ctx, at, at, session.Record{"price": 5.0}, nil)
	if err != nil {
		t.Fatalf("map to entity: %v", err)
	}
	byPath := errs.ByPath()
	if len(byPath["title"]) != 1 {
		t.Fatalf("expected a required error at title, got %v", errs.All())
	}
	if !strings.Contains(byPath["title"][0].Message, "Title is required") {
		t.Fatalf("required message should name the field label, got %q", byPath["title"][0].Message)
	}
}

func TestFieldErrorsDoNotAbortSiblings(t *testing.T) {
	reg := newTestRegistry(t, articleType())
	ctx := newTestContext(reg, session.NewMemory())
	at := reg.Type("article")

	model := session.Record{
		"title": "Still mapped",
		"price": "not a number",
	}
	entity, errs, err := ModelToEntity(ctx, at, at, model, nil)
	if err != nil {
		t.Fatalf("map to entity: %v", err)
	}
	if errs.Empty() {
		t.Fatal("expected a validation error at price")
	}
	if _, present := errs.ByPath()["price"]; !present {
		t.Fatalf("error should be keyed by field path, got %v", errs.All())
	}
	if entity["title"] != "Still mapped" {
		t.Fatal("sibling fields should map despite the failure")
	}
	if _, set := entity["price"]; set {
		t.Fatalf("failed field should not be written, got %v", entity["price"])
	}
}

type panickyPlugin struct {
	accepting
	passthrough
}

func (panickyPlugin) ToStorage(_ *Context, _ any, _ *metadata.FieldDescriptor, _ session.Record) (any, error) {
	panic("conversion blew up")
}

func TestFieldPanicBecomesFieldError(t *testing.T) {
	td := &metadata.TypeDescriptor{
		Name:     "widget",
		KeyField: "id",
		Fields: []metadata.FieldDescriptor{
			{Name: "id", Type: metadata.TypeText},
			{Name: "boom", Type: "panicky"},
			{Name: "name", Type: metadata.TypeText},
		},
	}
	reg := newTestRegistry(t, td)
	ctx := newTestContext(reg, session.NewMemory())
	ctx.Plugins.Register("panicky", panickyPlugin{})

	entity, errs, err := ModelToEntity(ctx, td, td, session.Record{"boom": "x", "name": "ok"}, nil)
	if err != nil {
		t.Fatalf("panic should not abort the call: %v", err)
	}
	boomErrs := errs.ByPath()["boom"]
	if len(boomErrs) != 1 || boomErrs[0].Code != "panic" {
		t.Fatalf("expected one panic error at boom, got %v", errs.All())
	}
	if entity["name"] != "ok" {
		t.Fatal("fields after the panicking one should still map")
	}
}

func TestConfigurationErrorAbortsCall(t *testing.T) {
	td := &metadata.TypeDescriptor{
		Name:     "holder",
		KeyField: "id",
		Fields: []metadata.FieldDescriptor{
			{Name: "id", Type: metadata.TypeText},
			{Name: "nested", Complex: &metadata.ComplexAttr{TypeName: "ghost", Storage: metadata.StorageJSON}},
		},
	}
	reg := newTestRegistry(t, td)
	ctx := newTestContext(reg, session.NewMemory())

	entity, _, err := ModelToEntity(ctx, td, td, session.Record{"nested": map[string]any{"a": 1}}, nil)
	if err == nil {
		t.Fatal("unregistered nested type should abort the call")
	}
	if entity != nil {
		t.Fatal("no partial entity should be returned on a configuration error")
	}
}

func TestComputedFields(t *testing.T) {
	td := &metadata.TypeDescriptor{
		Name:         "task",
		Table:        "tasks",
		KeyField:     "id",
		KeyGenerated: true,
		Fields: []metadata.FieldDescriptor{
			{Name: "id", Type: metadata.TypeText},
			{Name: "name", Type: metadata.TypeText},
			{Name: "created_at", Type: metadata.TypeDateTime, Auto: metadata.AutoCreate},
			{Name: "updated_at", Type: metadata.TypeDateTime, Auto: metadata.AutoUpdate},
			{Name: "updated_by", Type: metadata.TypeText, Auto: metadata.AutoUpdatedBy},
			{Name: "sort_index", Type: metadata.TypeNumeric, Auto: metadata.AutoSortIndex,
				Numeric: metadata.NewNumericAttr()},
		},
	}
	reg := newTestRegistry(t, td)
	mem := session.NewMemory()
	mem.Put("task", "t1", session.Record{"id": "t1", "sort_index": int64(4)})

	ctx := newTestContext(reg, mem)
	ctx.UserID = "user-9"
	first := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ctx.Clock = func() time.Time { return first }

	entity, _, err := ModelToEntity(ctx, td, td, session.Record{"name": "new"}, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if entity["created_at"] != first || entity["updated_at"] != first {
		t.Fatalf("create should stamp both timestamps, got %v / %v", entity["created_at"], entity["updated_at"])
	}
	if entity["updated_by"] != "user-9" {
		t.Fatalf("expected acting user, got %v", entity["updated_by"])
	}
	if entity["sort_index"] != int64(5) {
		t.Fatalf("sort index should be max+1, got %v", entity["sort_index"])
	}

	// Update: creation timestamp and sort index stay, modification data moves
	entity["id"] = "t2"
	later := first.Add(time.Hour)
	ctx.Clock = func() time.Time { return later }
	ctx.UserID = "user-10"

	updated, _, err := ModelToEntity(ctx, td, td, session.Record{"name": "renamed"}, entity)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated["created_at"] != first {
		t.Fatalf("creation timestamp must not move on update, got %v", updated["created_at"])
	}
	if updated["updated_at"] != later {
		t.Fatalf("modification timestamp should move, got %v", updated["updated_at"])
	}
	if updated["updated_by"] != "user-10" {
		t.Fatalf("expected new acting user, got %v", updated["updated_by"])
	}
	if updated["sort_index"] != int64(5) {
		t.Fatalf("sort index must not move on update, got %v", updated["sort_index"])
	}
}

func TestRules(t *testing.T) {
	td := articleType()
	td.Rules = []*metadata.Rule{
		{Field: "price", Kind: metadata.RuleValidate,
			Expression: "(record.price ?? 0) >= 1", Message: "Price must be at least 1"},
		{Field: "slug", Kind: metadata.RuleCompute,
			Expression: `lower(record.title ?? "")`},
	}
	reg := newTestRegistry(t, td)
	ctx := newTestContext(reg, session.NewMemory())

	// Failing validate rule blocks the compute rule
	entity, errs, err := ModelToEntity(ctx, td, td, session.Record{"title": "Hi", "price": 0.5}, nil)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	priceErrs := errs.ByPath()["price"]
	if len(priceErrs) != 1 || priceErrs[0].Message != "Price must be at least 1" {
		t.Fatalf("expected the rule message at price, got %v", errs.All())
	}
	if _, set := entity["slug"]; set {
		t.Fatal("compute rules must not run when a validate rule failed")
	}

	// Passing run computes
	entity, errs, err = ModelToEntity(ctx, td, td, session.Record{"title": "Hello World", "price": 2.0}, nil)
	if err != nil || !errs.Empty() {
		t.Fatalf("map: %v / %v", err, errs.All())
	}
	if entity["slug"] != "hello world" {
		t.Fatalf("expected computed slug, got %v", entity["slug"])
	}
}

func TestJSONComplexPreservesUnknownKeys(t *testing.T) {
	specs := &metadata.TypeDescriptor{
		Name:     "specs",
		KeyField: "material",
		Fields: []metadata.FieldDescriptor{
			{Name: "material", Type: metadata.TypeText},
			{Name: "weight", Type: metadata.TypeNumeric, Numeric: metadata.NewNumericAttr()},
		},
	}
	holder := &metadata.TypeDescriptor{
		Name:     "item",
		KeyField: "id",
		Fields: []metadata.FieldDescriptor{
			{Name: "id", Type: metadata.TypeText},
			{Name: "specs", Complex: &metadata.ComplexAttr{TypeName: "specs", Storage: metadata.StorageJSON}},
		},
	}
	reg := newTestRegistry(t, specs, holder)
	ctx := newTestContext(reg, session.NewMemory())

	existing := session.Record{
		"id":    "i1",
		"specs": `{"material":"wood","legacy_code":"LX-1"}`,
	}
	model := session.Record{"specs": map[string]any{"material": "steel", "weight": 4.0}}

	entity, errs, err := ModelToEntity(ctx, holder, holder, model, existing)
	if err != nil || !errs.Empty() {
		t.Fatalf("map: %v / %v", err, errs.All())
	}

	raw, ok := entity["specs"].(string)
	if !ok {
		t.Fatalf("JSON strategy should serialize at the top level, got %T", entity["specs"])
	}
	var bag map[string]any
	if err := json.Unmarshal([]byte(raw), &bag); err != nil {
		t.Fatalf("decode persisted bag: %v", err)
	}
	if bag["material"] != "steel" {
		t.Fatalf("declared key should be overwritten, got %v", bag["material"])
	}
	if bag["legacy_code"] != "LX-1" {
		t.Fatalf("undeclared key should survive, got %v", bag["legacy_code"])
	}
}

func TestRepeaterRelatedReconciliation(t *testing.T) {
	variant := &metadata.TypeDescriptor{
		Name:         "variant",
		Table:        "variants",
		KeyField:     "id",
		KeyGenerated: true,
		Fields: []metadata.FieldDescriptor{
			{Name: "id", Type: metadata.TypeText},
			{Name: "label", Type: metadata.TypeText},
			{Name: "position", Type: metadata.TypeNumeric, Auto: metadata.AutoSortIndex,
				Numeric: metadata.NewNumericAttr()},
		},
	}
	holder := &metadata.TypeDescriptor{
		Name:     "gadget",
		KeyField: "id",
		Fields: []metadata.FieldDescriptor{
			{Name: "id", Type: metadata.TypeText},
			{Name: "variants", Complex: &metadata.ComplexAttr{
				TypeName: "variant", Storage: metadata.StorageRelated, Repeater: true, MaxItems: 3,
			}},
		},
	}
	reg := newTestRegistry(t, variant, holder)
	ctx := newTestContext(reg, session.NewMemory())

	kept := session.Record{"id": "v1", "label": "Old", "secret": "survives"}
	existing := session.Record{
		"id":       "g1",
		"variants": []session.Record{kept, {"id": "v2", "label": "Drop me"}},
	}
	model := session.Record{
		"variants": []any{
			map[string]any{"id": "v1", "label": "Renamed"},
			map[string]any{"label": "Brand new"},
		},
	}

	entity, errs, err := ModelToEntity(ctx, holder, holder, model, existing)
	if err != nil || !errs.Empty() {
		t.Fatalf("map: %v / %v", err, errs.All())
	}

	result, ok := entity["variants"].([]any)
	if !ok || len(result) != 2 {
		t.Fatalf("expected 2 mapped variants, got %v", entity["variants"])
	}
	first := result[0].(session.Record)
	if first["label"] != "Renamed" || first["secret"] != "survives" {
		t.Fatalf("matched item should be updated in place, got %v", first)
	}
	if first["position"] != int64(0) {
		t.Fatalf("sort field should follow list order, got %v", first["position"])
	}
	second := result[1].(session.Record)
	if second["label"] != "Brand new" || second["position"] != int64(1) {
		t.Fatalf("unmatched item should be fresh with its index, got %v", second)
	}
}

func TestRepeaterItemLimits(t *testing.T) {
	variant := &metadata.TypeDescriptor{
		Name:     "entry",
		KeyField: "id",
		Fields: []metadata.FieldDescriptor{
			{Name: "id", Type: metadata.TypeText},
			{Name: "label", Type: metadata.TypeText},
		},
	}
	holder := &metadata.TypeDescriptor{
		Name:     "list_holder",
		KeyField: "id",
		Fields: []metadata.FieldDescriptor{
			{Name: "id", Type: metadata.TypeText},
			{Name: "entries", Complex: &metadata.ComplexAttr{
				TypeName: "entry", Storage: metadata.StorageJSON, Repeater: true, MinItems: 2, MaxItems: 3,
			}},
		},
	}
	reg := newTestRegistry(t, variant, holder)
	ctx := newTestContext(reg, session.NewMemory())

	_, errs, err := ModelToEntity(ctx, holder, holder, session.Record{
		"entries": []any{map[string]any{"label": "only one"}},
	}, nil)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	entryErrs := errs.ByPath()["entries"]
	if len(entryErrs) != 1 || !strings.Contains(entryErrs[0].Message, "at least 2") {
		t.Fatalf("expected a min-items error, got %v", errs.All())
	}
}
