package marketplace

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/exp/slices"
)

var validate = validator.New()

// prepare coerces data to the schema field kinds and validates it. Every
// invalid field is reported. With existing set (an update) only the present
// fields are checked, and a required field may not be cleared. uploaded
// names the attachment fields satisfied by a file in the same call.
//
// Attachment fields are only written by an upload. A value may clear one,
// or repeat the URL the record already holds, but never point it at
// another object.
func prepare(schema *Schema, data map[string]any, uploaded map[string]bool, existing *Record) (map[string]any, error) {
	partial := existing != nil
	out := make(map[string]any, len(data))
	errs := FieldErrors{}

	for _, f := range schema.Fields {
		raw, present := data[f.Name]
		if uploaded[f.Name] {
			continue
		}
		if f.Kind == KindAttachment && !isEmpty(raw) {
			s, _ := toString(raw)
			if existing == nil || s != existing.String(f.Name) {
				errs[f.Name] = "must be uploaded as a file"
			}
			continue
		}
		if isEmpty(raw) {
			switch {
			case f.Required && !partial:
				errs[f.Name] = "is required"
			case f.Required && present:
				errs[f.Name] = "cannot be empty"
			case present:
				out[f.Name] = nil
			}
			continue
		}
		value, err := coerce(f, raw)
		if err != nil {
			errs[f.Name] = err.Error()
			continue
		}
		out[f.Name] = value
	}

	if len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}
	return out, nil
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// coerce converts raw to the Go type stored for f and applies its rules.
func coerce(f Field, raw any) (any, error) {
	var value any
	var err error

	switch f.Kind {
	case KindInt:
		value, err = toInt(raw)
	case KindNumber:
		value, err = toFloat(raw)
	case KindBool:
		value, err = toBool(raw)
	case KindDate:
		value, err = toTime(raw, "2006-01-02")
	case KindTime:
		value, err = toTime(raw, time.RFC3339)
	default:
		value, err = toString(raw)
	}
	if err != nil {
		return nil, err
	}

	switch f.Kind {
	case KindEmail:
		if err := validate.Var(value, "email"); err != nil {
			return nil, errors.New("must be a valid email address")
		}
	case KindURL:
		if err := validate.Var(value, "url"); err != nil {
			return nil, errors.New("must be a valid URL")
		}
	case KindEnum:
		if !slices.Contains(f.Enum, value.(string)) {
			return nil, fmt.Errorf("must be one of %s", strings.Join(f.Enum, ", "))
		}
	}

	if f.Rules != "" {
		if err := validate.Var(value, f.Rules); err != nil {
			return nil, describe(err)
		}
	}
	return value, nil
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Param() != "" {
			return fmt.Errorf("failed %s=%s", fe.Tag(), fe.Param())
		}
		return fmt.Errorf("failed %s", fe.Tag())
	}
	return err
}

func toString(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v), nil
	case json.Number:
		return v.String(), nil
	case bool, int, int32, int64, float32, float64:
		return fmt.Sprint(v), nil
	}
	return "", errors.New("must be a string")
}

func toInt(raw any) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if math.IsInf(v, 0) || math.IsNaN(v) || v != math.Trunc(v) {
			return 0, errors.New("must be an integer")
		}
		return int64(v), nil
	case json.Number:
		return toInt(v.String())
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, errors.New("must be an integer")
		}
		return n, nil
	}
	return 0, errors.New("must be an integer")
}

func toFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float32:
		return finite(float64(v))
	case float64:
		return finite(v)
	case json.Number:
		return toFloat(v.String())
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, errors.New("must be a number")
		}
		return finite(n)
	}
	return 0, errors.New("must be a number")
}

// finite rejects the infinities and NaN that ParseFloat accepts.
func finite(v float64) (float64, error) {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, errors.New("must be a number")
	}
	return v, nil
}

func toBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "yes", "y":
			return true, nil
		case "no", "n":
			return false, nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, errors.New("must be a boolean")
		}
		return b, nil
	}
	return false, errors.New("must be a boolean")
}

func toTime(raw any, layout string) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		s := strings.TrimSpace(v)
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC(), nil
		}
		if layout == "2006-01-02" {
			return time.Time{}, errors.New("must be a date (YYYY-MM-DD)")
		}
		return time.Time{}, errors.New("must be an RFC 3339 timestamp")
	}
	return time.Time{}, errors.New("must be a date")
}

// coerceFilters converts query string filter values to column types.
// Unknown keys pass through untouched; the query builder drops them.
func coerceFilters(schema *Schema, filters map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(filters))
	errs := FieldErrors{}
	for key, raw := range filters {
		switch key {
		case ColumnIsActive:
			b, err := toBool(raw)
			if err != nil {
				errs[key] = err.Error()
				continue
			}
			out[key] = b
		case ColumnStatus:
			s, _ := toString(raw)
			if !Status(s).IsValid() {
				errs[key] = "must be one of pending, approved, rejected"
				continue
			}
			out[key] = s
		default:
			f, ok := schema.Field(key)
			if !ok {
				out[key] = raw
				continue
			}
			var v any
			var err error
			switch f.Kind {
			case KindInt:
				v, err = toInt(raw)
			case KindNumber:
				v, err = toFloat(raw)
			case KindBool:
				v, err = toBool(raw)
			case KindDate:
				v, err = toTime(raw, "2006-01-02")
			case KindTime:
				v, err = toTime(raw, time.RFC3339)
			default:
				v, err = toString(raw)
			}
			if err != nil {
				errs[key] = err.Error()
				continue
			}
			out[key] = v
		}
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}
	return out, nil
}
