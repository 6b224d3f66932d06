package serializers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidBody is returned when the request body is not a JSON object.
var ErrInvalidBody = errors.New("invalid JSON body")

// Messages used for field errors.
const (
	msgRequired = "This field is required."
	msgNull     = "This field may not be null."
	msgBlank    = "This field may not be blank."
	msgInteger  = "A valid integer is required."
	msgNumber   = "A valid number is required."
	msgString   = "Not a valid string."
	msgList     = "Expected a list of items."
)

// MsgNameExists is reported when a rename collides with another row of the same user.
const MsgNameExists = "An item with this name already exists."

// FieldErrors maps a JSON field path to its validation messages.
type FieldErrors map[string][]string

// Add appends a message for field.
func (fe FieldErrors) Add(field, msg string) {
	fe[field] = append(fe[field], msg)
}

// Error implements error with fields in a stable order.
func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+strings.Join(fe[f], " "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Err returns nil when there are no field errors.
func (fe FieldErrors) Err() error {
	if len(fe) == 0 {
		return nil
	}
	return fe
}

// Merge copies other's messages under prefix.
func (fe FieldErrors) Merge(prefix string, other FieldErrors) {
	for f, msgs := range other {
		for _, m := range msgs {
			fe.Add(prefix+f, m)
		}
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct runs struct tag validation and converts failures to FieldErrors.
func validateStruct(s interface{}, into FieldErrors) {
	err := validate.Struct(s)
	if err == nil {
		return
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		into.Add("non_field_errors", err.Error())
		return
	}
	for _, fe := range verrs {
		into.Add(fe.Field(), validationMessage(fe))
	}
}

// validateVar validates a single value against tag and records failures under field.
func validateVar(into FieldErrors, field string, value interface{}, tag string) {
	err := validate.Var(value, tag)
	if err == nil {
		return
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		into.Add(field, err.Error())
		return
	}
	for _, fe := range verrs {
		into.Add(field, validationMessage(fe))
	}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return msgBlank
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "url":
		return "Enter a valid URL."
	default:
		return "Invalid value."
	}
}

// decodeFields splits a JSON object body into its raw members.
func decodeFields(body []byte) (map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return nil, ErrInvalidBody
	}
	return raw, nil
}

// decodeField unmarshals raw[key] into dst when the key is present and records
// a type error under key when it does not decode.
func decodeField[T any](raw map[string]json.RawMessage, key string, dst *Optional[T], typeMsg string, errs FieldErrors) {
	data, ok := raw[key]
	if !ok {
		return
	}
	if err := dst.UnmarshalJSON(data); err != nil {
		errs.Add(key, typeMsg)
	}
}

// decodeInteger accepts a JSON number or a numeric string holding a whole
// number, so "10", 10 and 10.0 all decode to 10.
func decodeInteger(raw map[string]json.RawMessage, key string, dst *Optional[int], errs FieldErrors) {
	data, ok := raw[key]
	if !ok {
		return
	}
	dst.Set = true
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		dst.Null = true
		return
	}

	text := string(data)
	var quoted string
	if json.Unmarshal(data, &quoted) == nil {
		text = strings.TrimSpace(quoted)
	}

	if n, err := strconv.ParseInt(text, 10, 32); err == nil {
		dst.Value = int(n)
		return
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		errs.Add(key, msgInteger)
		return
	}
	dst.Value = int(f)
}

// ErrorBody renders a decode or validation error as a response body.
func ErrorBody(err error) map[string]interface{} {
	var fe FieldErrors
	if errors.As(err, &fe) {
		return map[string]interface{}{"error": "Validation failed", "fields": fe}
	}
	return map[string]interface{}{"error": "Invalid JSON body"}
}
