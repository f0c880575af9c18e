// Package validator wraps go-playground/validator with field names taken from
// env tags, so failures name the variable an operator has to fix.
package validator

import (
	"errors"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name, _, _ := strings.Cut(f.Tag.Get("env"), ","); name != "" {
			return name
		}
		if prefix := f.Tag.Get("envPrefix"); prefix != "" {
			return strings.TrimSuffix(prefix, "_")
		}
		return f.Name
	})
	return v
}

// Fields maps each failing field to the rule it broke. It returns nil when err
// carries no field failures.
func Fields(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		fields[envName(fe.Namespace())] = rule
	}
	return fields
}

// Describe renders fields as "NAME: rule" pairs in a stable order.
func Describe(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fields[k])
	}
	return strings.Join(parts, ", ")
}

// envName turns Config.SNS.TOPICS into SNS_TOPICS.
func envName(namespace string) string {
	_, rest, ok := strings.Cut(namespace, ".")
	if !ok {
		return namespace
	}
	return strings.ReplaceAll(rest, ".", "_")
}
