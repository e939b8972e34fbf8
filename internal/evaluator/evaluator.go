// Package evaluator defines the contract of the external expression
// evaluator and ships a local evaluator, an HTTP client for a remote one and
// a resilience wrapper.
package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
)

// Evaluator evaluates a domain expression against variable bindings.
// Implementations return errors wrapping domain.ErrExpressionEvaluation for
// expressions that cannot be evaluated.
type Evaluator interface {
	Evaluate(ctx context.Context, expr domain.Expression, b Bindings) (Value, error)
}

// Func adapts a function to the Evaluator interface
type Func func(ctx context.Context, expr domain.Expression, b Bindings) (Value, error)

// Evaluate calls f
func (f Func) Evaluate(ctx context.Context, expr domain.Expression, b Bindings) (Value, error) {
	return f(ctx, expr, b)
}

// Test evaluates a condition. Empty expressions hold. Errors are never
// turned into false; they are returned wrapping
// domain.ErrExpressionEvaluation.
func Test(ctx context.Context, ev Evaluator, expr domain.Expression, b Bindings) (bool, error) {
	if expr.IsEmpty() {
		return true, nil
	}
	v, err := ev.Evaluate(ctx, expr, b)
	if err != nil {
		return false, wrapEvalError(expr, err)
	}
	ok, err := v.AsBool()
	if err != nil {
		return false, wrapEvalError(expr, err)
	}
	return ok, nil
}

// Eval evaluates expr, wrapping every failure with
// domain.ErrExpressionEvaluation
func Eval(ctx context.Context, ev Evaluator, expr domain.Expression, b Bindings) (Value, error) {
	v, err := ev.Evaluate(ctx, expr, b)
	if err != nil {
		return Value{}, wrapEvalError(expr, err)
	}
	return v, nil
}

func wrapEvalError(expr domain.Expression, err error) error {
	if errors.Is(err, domain.ErrExpressionEvaluation) {
		return err
	}
	return fmt.Errorf("%w: %q: %w", domain.ErrExpressionEvaluation, expr.Code, err)
}

// -----------------------------------------------------------------------------
// Values
// -----------------------------------------------------------------------------

// Kind is the type of a Value
type Kind int

const (
	KindBool Kind = iota
	KindNumber
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	default:
		return "text"
	}
}

// Value is the result of an evaluation
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
}

func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }
func Text(s string) Value    { return Value{kind: KindText, s: s} }
func (v Value) Kind() Kind   { return v.kind }

// AsBool converts the value to a truth value. Numbers are true when
// non-zero; text must spell "true" or "false".
func (v Value) AsBool() (bool, error) {
	switch v.kind {
	case KindBool:
		return v.b, nil
	case KindNumber:
		return v.n != 0, nil
	default:
		switch strings.ToLower(strings.TrimSpace(v.s)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return false, fmt.Errorf("text %q is not a truth value", v.s)
	}
}

// AsNumber converts the value to a number
func (v Value) AsNumber() (float64, error) {
	switch v.kind {
	case KindNumber:
		return v.n, nil
	case KindBool:
		if v.b {
			return 1, nil
		}
		return 0, nil
	default:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		if err != nil {
			return 0, fmt.Errorf("text %q is not a number", v.s)
		}
		return n, nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return strconv.FormatFloat(v.n, 'g', -1, 64)
	default:
		return v.s
	}
}

// ParseValue types raw user input: numbers and truth values are
// recognised, everything else stays text
func ParseValue(raw string) Value {
	trimmed := strings.TrimSpace(raw)
	if n, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return Number(n)
	}
	switch trimmed {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	}
	return Text(raw)
}

// Equal compares two values by kind and content
func (v Value) Equal(other Value) bool {
	return v == other
}

// MarshalJSON encodes the value as a plain JSON bool, number or string
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		return json.Marshal(v.n)
	default:
		return json.Marshal(v.s)
	}
}

// UnmarshalJSON decodes a plain JSON bool, number or string
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case bool:
		*v = Bool(x)
	case float64:
		*v = Number(x)
	case string:
		*v = Text(x)
	default:
		return fmt.Errorf("unsupported value %s", data)
	}
	return nil
}

// Bindings maps variable names to their current values
type Bindings map[string]Value

// Clone returns a copy of the bindings
func (b Bindings) Clone() Bindings {
	out := make(Bindings, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}
