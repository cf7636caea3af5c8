package forms

import (
	"sort"
	"strings"
)

// FieldError is a validation message attached to one control.
type FieldError struct {
	ControlID string `json:"controlId"`
	Message   string `json:"message"`
}

// Validate checks that every required control has a non-empty value and
// that no unknown controls are present.
func (f Form) Validate(controls map[string]any) []FieldError {
	var errs []FieldError

	known := make(map[string]struct{}, len(f.Controls))
	for _, c := range f.Controls {
		known[c.ID()] = struct{}{}
		if !c.Required {
			continue
		}
		if isEmpty(controls[c.ID()]) {
			errs = append(errs, FieldError{ControlID: c.ID(), Message: "is required"})
		}
	}

	var unknown []string
	for k := range controls {
		if _, ok := known[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		errs = append(errs, FieldError{ControlID: k, Message: "is not part of this form"})
	}

	return errs
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	}
	return false
}

// Describe renders field errors for display, replacing control IDs with
// field names: "Initials: is required; Village: is required".
func Describe(errs []FieldError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, FieldName(e.ControlID)+": "+e.Message)
	}
	return strings.Join(parts, "; ")
}
