package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"

	"mercator-hq/tether/pkg/conditions"
	"mercator-hq/tether/pkg/store"
)

// Category groups related policies. Category-wide default conditions are
// keyed by it.
type Category string

const (
	CategoryBlock    Category = "block"
	CategoryRelation Category = "relation"
	CategorySetting  Category = "setting"
	CategoryAlter    Category = "alter"
	CategoryOther    Category = "other"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryBlock, CategoryRelation, CategorySetting, CategoryAlter, CategoryOther:
		return true
	}
	return false
}

// FieldKind is the type of a custom data field.
type FieldKind string

const (
	FieldBool    FieldKind = "bool"
	FieldInt     FieldKind = "int"
	FieldNumber  FieldKind = "number"
	FieldString  FieldKind = "string"
	FieldStrings FieldKind = "strings"
)

// Field declares one custom data field.
type Field struct {
	// Name is the key in the stored custom data.
	Name string

	// Kind is the value type.
	Kind FieldKind

	// Default is used when the stored value is missing or invalid.
	Default any

	// Options restricts string fields to a fixed set of values.
	Options []string
}

// Schema declares the custom data of a policy.
type Schema []Field

// TriggerTexts are the message templates of a policy. Placeholders use
// the ${name} form and are filled from trigger variables.
type TriggerTexts struct {
	Log        string // Text recorded by Trigger
	AttemptLog string // Text recorded by TriggerAttempt
	Announce   string // Text announced to present actors
}

// Definition describes a policy. It is immutable once registered.
type Definition struct {
	ID       string
	Name     string
	Category Category

	// Priority orders policies within a tick, lowest first. Ties are
	// broken by ID.
	Priority int

	// Loggable and Enforceable declare which toggles apply. A policy that
	// is not enforceable is enforced whenever it is in effect.
	Loggable    bool
	Enforceable bool

	DefaultLimit    conditions.Limit
	DefaultEnforced bool
	DefaultLogged   bool

	ShortDescription string
	Keywords         []string
	Triggers         TriggerTexts

	// Schema declares the custom data fields.
	Schema Schema

	// InternalDefault returns the initial internal data. It may consult
	// the host, and is called with no engine locks held by the policy.
	InternalDefault func() any

	// InternalValidate reports whether stored internal data can be trusted.
	InternalValidate func(raw json.RawMessage) bool
}

// Validate checks the definition for registration.
func (d *Definition) Validate() error {
	var errs []error
	if d.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if !d.Category.Valid() {
		errs = append(errs, fmt.Errorf("unknown category %q", d.Category))
	}
	if d.DefaultLimit != "" && !d.DefaultLimit.Valid() {
		errs = append(errs, fmt.Errorf("unknown default limit %q", d.DefaultLimit))
	}
	seen := make(map[string]bool, len(d.Schema))
	for _, f := range d.Schema {
		if f.Name == "" {
			errs = append(errs, errors.New("schema field without name"))
			continue
		}
		if seen[f.Name] {
			errs = append(errs, fmt.Errorf("duplicate schema field %q", f.Name))
		}
		seen[f.Name] = true
		if _, err := f.coerce(f.Default); err != nil {
			errs = append(errs, fmt.Errorf("field %q default: %w", f.Name, err))
		}
	}
	return errors.Join(errs...)
}

// DefaultRecord returns the record of a freshly enabled policy.
func (d *Definition) DefaultRecord() *store.Record {
	limit := d.DefaultLimit
	if limit == "" {
		limit = conditions.LimitNormal
	}
	return &store.Record{
		ID:         d.ID,
		Enabled:    true,
		Enforced:   d.Enforceable && d.DefaultEnforced,
		Logged:     d.Loggable && d.DefaultLogged,
		Limit:      limit,
		CustomData: d.Schema.Defaults(),
	}
}

// defaultInternal marshals the internal default, or returns nil.
func (d *Definition) defaultInternal() (json.RawMessage, error) {
	if d.InternalDefault == nil {
		return nil, nil
	}
	return json.Marshal(d.InternalDefault())
}

// Defaults returns a map holding the default of every field.
func (s Schema) Defaults() map[string]any {
	out := make(map[string]any, len(s))
	for _, f := range s {
		out[f.Name] = cloneValue(f.Default)
	}
	return out
}

// Decode validates raw against the schema. Missing fields get their
// default, unknown keys are dropped, and invalid values are replaced by
// the default and reported in a *ValidationError.
func (s Schema) Decode(policyID string, raw map[string]any) (map[string]any, error) {
	out := s.Defaults()
	var fieldErrs []FieldError

	for key := range raw {
		if !slices.ContainsFunc(s, func(f Field) bool { return f.Name == key }) {
			fieldErrs = append(fieldErrs, FieldError{Field: key, Message: "unknown field dropped"})
		}
	}

	for _, f := range s {
		v, ok := raw[f.Name]
		if !ok {
			continue
		}
		coerced, err := f.coerce(v)
		if err != nil {
			fieldErrs = append(fieldErrs, FieldError{Field: f.Name, Message: err.Error()})
			continue
		}
		out[f.Name] = coerced
	}

	if len(fieldErrs) > 0 {
		slices.SortFunc(fieldErrs, func(a, b FieldError) int {
			if a.Field < b.Field {
				return -1
			}
			if a.Field > b.Field {
				return 1
			}
			return 0
		})
		return out, NewValidationError(policyID, "custom_data", fieldErrs)
	}
	return out, nil
}

// coerce converts v to the field's kind.
func (f Field) coerce(v any) (any, error) {
	switch f.Kind {
	case FieldBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", v)
		}
		return b, nil

	case FieldInt:
		n, ok := toFloat(v)
		if !ok || n != math.Trunc(n) {
			return nil, fmt.Errorf("expected integer, got %v", v)
		}
		return int64(n), nil

	case FieldNumber:
		n, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("expected number, got %T", v)
		}
		return n, nil

	case FieldString:
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		if len(f.Options) > 0 && !slices.Contains(f.Options, str) {
			return nil, fmt.Errorf("%q is not one of %v", str, f.Options)
		}
		return str, nil

	case FieldStrings:
		switch list := v.(type) {
		case []string:
			return slices.Clone(list), nil
		case []any:
			out := make([]string, 0, len(list))
			for _, item := range list {
				str, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("expected string list, got element %T", item)
				}
				out = append(out, str)
			}
			return out, nil
		case nil:
			return []string{}, nil
		}
		return nil, fmt.Errorf("expected string list, got %T", v)
	}
	return nil, fmt.Errorf("unknown field kind %q", f.Kind)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func cloneValue(v any) any {
	if list, ok := v.([]string); ok {
		return slices.Clone(list)
	}
	return v
}
