package mapping

import (
	"fmt"

	"adminkit/internal/metadata"
	"adminkit/internal/session"
)

// applyComputedFields handles auto-managed fields before the main per-field
// pass: creation timestamp (set only while unset), last-modified timestamp
// (always overwritten), last-modified-by (from the acting user) and the
// auto-incrementing sort index (new entities only).
func applyComputedFields(ctx *Context, entityType *metadata.TypeDescriptor, entity session.Record, isUpdate bool) error {
	for i := range entityType.Fields {
		f := &entityType.Fields[i]
		switch f.Auto {
		case metadata.AutoCreate:
			if entity[f.Name] == nil {
				entity[f.Name] = ctx.now()
			}
		case metadata.AutoUpdate:
			entity[f.Name] = ctx.now()
		case metadata.AutoUpdatedBy:
			if ctx.UserID != "" {
				entity[f.Name] = ctx.UserID
			}
		case metadata.AutoSortIndex:
			if isUpdate || ctx.Session == nil {
				continue
			}
			max, err := ctx.Session.MaxSortIndex(ctx.Ctx, entityType, f.Name)
			if err != nil {
				return fmt.Errorf("compute sort index for %s.%s: %w", entityType.Name, f.Name, err)
			}
			entity[f.Name] = max + 1
		}
	}
	return nil
}

// runRules evaluates the type's expression rules against the mapped record:
// validate rules first, accumulating failures; compute rules only when every
// validate rule passed.
func runRules(t *metadata.TypeDescriptor, record, old session.Record, isCreate bool, errs *Errors) {
	if len(t.Rules) == 0 {
		return
	}
	env := metadata.RuleEnv(record, old, isCreate)

	failed := false
	for _, rule := range t.Rules {
		if rule.Kind != metadata.RuleValidate {
			continue
		}
		out, err := rule.Run(env)
		if err != nil {
			errs.Add(rule.Field, "rule", err.Error())
			failed = true
			continue
		}
		if pass, ok := out.(bool); !ok || !pass {
			errs.Add(rule.Field, "rule", rule.FailMessage())
			failed = true
		}
	}
	if failed {
		return
	}

	for _, rule := range t.Rules {
		if rule.Kind != metadata.RuleCompute {
			continue
		}
		out, err := rule.Run(env)
		if err != nil {
			errs.Add(rule.Field, "rule", err.Error())
			continue
		}
		record[rule.Field] = out
	}
}
