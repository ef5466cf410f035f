package validator

import (
	"errors"
	"fmt"
	"net"
	"reflect"
	"sort"
	"strings"
)

// ValidationErrors is a map of field names to their validation errors.
type ValidationErrors map[string][]error

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for field := range v {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var sb strings.Builder
	for _, field := range fields {
		for _, err := range v[field] {
			if sb.Len() > 0 {
				sb.WriteString("; ")
			}
			sb.WriteString(fmt.Sprintf("%s: %v", field, err))
		}
	}
	return sb.String()
}

// Rule is the interface for a single validation rule.
type Rule interface {
	Validate(value any) error
	Msg(msg string) Rule
	Optional() Rule
	When(fn func(value any) bool) Rule
}

// rule carries the check plus the modifiers shared by every rule.
type rule struct {
	check    func(value any) error
	msg      string
	optional bool
	when     func(value any) bool
}

func newRule(check func(value any) error) Rule {
	return &rule{check: check}
}

func (r *rule) Validate(value any) error {
	if r.when != nil && !r.when(value) {
		return nil
	}
	if r.optional && isZeroValue(value) {
		return nil
	}
	if err := r.check(value); err != nil {
		if r.msg != "" {
			return errors.New(r.msg)
		}
		return err
	}
	return nil
}

func (r *rule) Msg(msg string) Rule {
	nr := *r
	nr.msg = msg
	return &nr
}

func (r *rule) Optional() Rule {
	nr := *r
	nr.optional = true
	return &nr
}

func (r *rule) When(fn func(value any) bool) Rule {
	nr := *r
	nr.when = fn
	return &nr
}

// Rules is a map of field names to validation rules.
type Rules map[string][]Rule

// Validate checks every rule against the named field of value, a struct
// or pointer to struct, and returns ValidationErrors.
func (r Rules) Validate(value any) error {
	if value == nil {
		return nil
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return fmt.Errorf("validator: value must be a struct or pointer to struct")
	}

	errs := make(ValidationErrors)
	for fieldName, rules := range r {
		field := rv.FieldByName(fieldName)
		if !field.IsValid() {
			continue
		}
		val := field.Interface()
		for _, rule := range rules {
			if err := rule.Validate(val); err != nil {
				errs[fieldName] = append(errs[fieldName], err)
			}
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Required rejects zero values.
var Required = newRule(func(v any) error {
	if isZeroValue(v) {
		return errors.New("is required")
	}
	return nil
})

// Hostname accepts an IP address or a DNS-style host name.
var Hostname = newRule(func(v any) error {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	if net.ParseIP(s) != nil {
		return nil
	}
	if len(s) > 253 || strings.ContainsAny(s, " /\\:@") {
		return fmt.Errorf("%q is not a valid host name", s)
	}
	return nil
})

// Range requires a number within [min, max].
func Range(min, max float64) Rule {
	return newRule(func(v any) error {
		val := reflectToFloat(v)
		if val < min || val > max {
			return fmt.Errorf("value must be between %v and %v", min, max)
		}
		return nil
	})
}

// In requires the value to equal one of values.
func In(values ...any) Rule {
	return newRule(func(v any) error {
		for _, val := range values {
			if val == v {
				return nil
			}
		}
		return fmt.Errorf("value %v is not in the allowed list %v", v, values)
	})
}

func reflectToFloat(v any) float64 {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return 0
}

func isZeroValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func:
		return rv.IsNil()
	}
	return rv.IsZero()
}
