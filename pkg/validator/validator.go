// Package validator runs go-playground struct rules and reports failures keyed by JSON field
// name, each with a message fit for API clients.
package validator

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Violation is one failed rule.
type Violation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// Violations is returned by Validate when any rule fails.
type Violations []Violation

func (v Violations) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(v))
	for i, violation := range v {
		msgs[i] = violation.Message
	}
	return strings.Join(msgs, "; ")
}

// Describe renders a violation message from the field label and the rule parameter.
type Describe func(field, param string) string

var (
	mu       sync.Mutex
	messages = map[string]Describe{
		"required": func(f, _ string) string { return f + " is required" },
		"oneof":    func(f, p string) string { return f + " must be one of " + p },
		"gte":      func(f, p string) string { return f + " must be at least " + p },
		"min":      func(f, p string) string { return f + " must contain at least " + p + " entries" },
		"max":      func(f, p string) string { return f + " must contain at most " + p + " entries" },
		"endpoint": func(f, _ string) string { return f + " must be a path on the deals api" },
	}
)

var instance = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	_ = v.RegisterValidation("endpoint", isEndpoint)
	return v
})

// Validate checks s against its `validate` tags.
func Validate(s any) error {
	err := instance().Struct(s)
	var failed validator.ValidationErrors
	if !errors.As(err, &failed) {
		return err
	}

	out := make(Violations, len(failed))
	for i, fe := range failed {
		out[i] = Violation{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Param:   fe.Param(),
			Message: describe(fe.Field(), fe.Tag(), fe.Param()),
		}
	}
	return out
}

// Register adds a custom rule. describe may be nil.
func Register(tag string, fn validator.Func, describe Describe) error {
	if err := instance().RegisterValidation(tag, fn); err != nil {
		return err
	}
	if describe != nil {
		mu.Lock()
		messages[tag] = describe
		mu.Unlock()
	}
	return nil
}

func describe(field, rule, param string) string {
	label := strings.ToLower(strings.ReplaceAll(field, "_", " "))
	mu.Lock()
	fn, ok := messages[rule]
	mu.Unlock()
	switch {
	case ok:
		return fn(label, param)
	case param != "":
		return fmt.Sprintf("%s failed %s=%s", label, rule, param)
	default:
		return fmt.Sprintf("%s failed %s", label, rule)
	}
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return f.Name
	}
	return name
}

// isEndpoint accepts origin-relative paths such as /api/deals/42.
func isEndpoint(fl validator.FieldLevel) bool {
	value := strings.TrimSpace(fl.Field().String())
	if !strings.HasPrefix(value, "/") || strings.HasPrefix(value, "//") {
		return false
	}
	u, err := url.Parse(value)
	return err == nil && u.Host == "" && u.Scheme == ""
}
