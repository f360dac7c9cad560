package async

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/teranos/waypoint/errors"
)

// ParamType names the type a job parameter must convert to
type ParamType string

const (
	ParamString ParamType = "string"
	ParamFloat  ParamType = "float"
	ParamInt    ParamType = "int"
	ParamBool   ParamType = "bool"
)

// ParamSpec describes one job parameter
type ParamSpec struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Description string    `json:"description,omitempty"`
	Optional    bool      `json:"optional,omitempty"`
}

// ParamErrorKind says why a job request was rejected
type ParamErrorKind string

const (
	ParamErrUnknownType ParamErrorKind = "unknown_type"
	ParamErrMissingUser ParamErrorKind = "missing_user"
	ParamErrMissing     ParamErrorKind = "missing"
	ParamErrInvalidType ParamErrorKind = "invalid_type"
)

// ParamError is returned for requests rejected before enqueue.
// It unwraps to errors.ErrInvalidRequest.
type ParamError struct {
	JobType  string
	Kind     ParamErrorKind
	Param    string
	Expected ParamType
	Got      interface{}
}

func (e *ParamError) Error() string {
	switch e.Kind {
	case ParamErrUnknownType:
		return fmt.Sprintf("unknown job type %q", e.JobType)
	case ParamErrMissingUser:
		return fmt.Sprintf("job type %s requires a user", e.JobType)
	case ParamErrMissing:
		return fmt.Sprintf("job type %s: missing parameter %q (%s)", e.JobType, e.Param, e.Expected)
	default:
		return fmt.Sprintf("job type %s: parameter %q must be %s, got %T", e.JobType, e.Param, e.Expected, e.Got)
	}
}

func (e *ParamError) Unwrap() error {
	return errors.ErrInvalidRequest
}

// Params holds validated, converted parameters for a job builder.
// Accessors return zero values for absent optional parameters.
type Params struct {
	values map[string]interface{}
}

// NewParams wraps already typed values. Intended for code that builds jobs directly.
func NewParams(values map[string]interface{}) Params {
	if values == nil {
		values = map[string]interface{}{}
	}
	return Params{values: values}
}

// Has reports whether name was supplied
func (p Params) Has(name string) bool {
	_, ok := p.values[name]
	return ok
}

func (p Params) String(name string) string {
	s, _ := p.values[name].(string)
	return s
}

func (p Params) Float(name string) float64 {
	f, _ := p.values[name].(float64)
	return f
}

func (p Params) Int(name string) int64 {
	i, _ := p.values[name].(int64)
	return i
}

func (p Params) Bool(name string) bool {
	b, _ := p.values[name].(bool)
	return b
}

// Map returns a copy of the converted values
func (p Params) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// convertParam converts untyped input (JSON, form or CLI values) to t
func convertParam(t ParamType, raw interface{}) (interface{}, bool) {
	switch t {
	case ParamString:
		s, ok := raw.(string)
		return s, ok

	case ParamFloat:
		switch v := raw.(type) {
		case float64:
			return v, !math.IsNaN(v) && !math.IsInf(v, 0)
		case float32:
			return float64(v), true
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		case json.Number:
			f, err := v.Float64()
			return f, err == nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
		}

	case ParamInt:
		switch v := raw.(type) {
		case int:
			return int64(v), true
		case int64:
			return v, true
		case float64:
			return int64(v), v == math.Trunc(v) && math.Abs(v) < 1<<53
		case json.Number:
			i, err := v.Int64()
			return i, err == nil
		case string:
			i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			return i, err == nil
		}

	case ParamBool:
		switch v := raw.(type) {
		case bool:
			return v, true
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			return b, err == nil
		}
	}
	return nil, false
}
