package core

import (
	"sort"
	"strings"
)

// FieldErrors collects validation failures keyed by input field name.
type FieldErrors map[string]string

func (fe FieldErrors) Add(field string, err error) {
	if _, exists := fe[field]; exists {
		return
	}
	fe[field] = err.Error()
}

func (fe FieldErrors) Set(field, msg string) {
	fe[field] = msg
}

// Err returns nil when no field failed.
func (fe FieldErrors) Err() error {
	if len(fe) == 0 {
		return nil
	}
	return fe
}

func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+fe[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is lets callers match any FieldErrors with errors.Is(err, ErrValidation).
func (fe FieldErrors) Is(target error) bool {
	return target == ErrValidation
}
