// Package validate checks form input before any backend call is made.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Custom tags.
const (
	TagNotBlank       = "notblank"
	TagResidentNumber = "resident_number"
)

var residentNumberRe = regexp.MustCompile(`^\d{13}$`)

// Validator wraps go-playground/validator with the portal's rules. It
// satisfies echo.Validator.
type Validator struct {
	v *validator.Validate
}

// New creates a validator. Field names in errors are taken from the form tag.
func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation(TagNotBlank, func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation(TagResidentNumber, func(fl validator.FieldLevel) bool {
		return IsResidentNumber(fl.Field().String())
	})

	return &Validator{v: v}
}

// Validate checks a struct and returns *Error on failure.
func (v *Validator) Validate(i interface{}) error {
	err := v.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	return newError(i, verrs)
}

// IsResidentNumber reports whether s is exactly 13 ASCII digits.
func IsResidentNumber(s string) bool {
	return residentNumberRe.MatchString(s)
}

// Error carries one user-facing message per failing form field.
type Error struct {
	Fields map[string]string
}

func (e *Error) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	msgs := make([]string, len(names))
	for i, name := range names {
		msgs[i] = e.Fields[name]
	}
	return strings.Join(msgs, "; ")
}

// Field returns the message for one field, or "".
func (e *Error) Field(name string) string {
	return e.Fields[name]
}

func newError(i interface{}, verrs validator.ValidationErrors) *Error {
	labels := labelsOf(i)
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		label := labels[fe.StructField()]
		if label == "" {
			label = name
		}

		switch fe.Tag() {
		case "required", TagNotBlank:
			fields[name] = fmt.Sprintf("%s is required", label)
		case TagResidentNumber:
			fields[name] = fmt.Sprintf("%s must be exactly 13 digits", label)
		default:
			fields[name] = fmt.Sprintf("%s is invalid", label)
		}
	}
	return &Error{Fields: fields}
}

// labelsOf maps struct field names to their label tag.
func labelsOf(i interface{}) map[string]string {
	t := reflect.TypeOf(i)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	labels := make(map[string]string)
	if t == nil || t.Kind() != reflect.Struct {
		return labels
	}
	for n := 0; n < t.NumField(); n++ {
		f := t.Field(n)
		if l := f.Tag.Get("label"); l != "" {
			labels[f.Name] = l
		}
	}
	return labels
}
