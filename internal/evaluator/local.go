package evaluator

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
)

// InputPrefix prefixes binding keys that hold stage input, referenced in
// expressions as [input=name]
const InputPrefix = "input."

// refPattern matches [var=name] and [input=name] references. A single '='
// keeps comparisons inside array literals out.
var refPattern = regexp.MustCompile(`\[\s*(\w+)\s*=([^=\]][^\]]*)\]`)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Local evaluates arithmetic and boolean expressions in process with the
// expr language. Besides expr's own syntax it resolves [var=name] and
// [input=name] references. Text meets numbers and truth values through
// their string form: + concatenates, == and != compare. Bound variables
// with identifier names can also be used bare. It is meant for authoring
// previews and tests; the MATH and CHEM dialects proper are served by a
// remote evaluator.
type Local struct {
	options []expr.Option
}

// NewLocal creates a local evaluator
func NewLocal() *Local {
	return &Local{
		options: []expr.Option{
			expr.Function("concatText", concatText, mixedText(new(func(string, float64) string))...),
			expr.Function("textEqual", textEqual, mixedText(new(func(string, float64) bool))...),
			expr.Function("textNotEqual", textNotEqual, mixedText(new(func(string, float64) bool))...),
			expr.Operator("+", "concatText"),
			expr.Operator("==", "textEqual"),
			expr.Operator("!=", "textNotEqual"),
		},
	}
}

// mixedText lists the signatures pairing text with a number or truth value
// in either order, with the result type of first
func mixedText[R any](first *func(string, float64) R) []any {
	return []any{
		first,
		new(func(float64, string) R),
		new(func(string, int) R),
		new(func(int, string) R),
		new(func(string, bool) R),
		new(func(bool, string) R),
	}
}

// Evaluate compiles and runs expr against b
func (l *Local) Evaluate(ctx context.Context, ex domain.Expression, b Bindings) (Value, error) {
	if err := ctx.Err(); err != nil {
		return Value{}, err
	}
	v, err := l.evaluate(ex.Code, b)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %q: %w", domain.ErrExpressionEvaluation, ex.Code, err)
	}
	return v, nil
}

func (l *Local) evaluate(code string, b Bindings) (Value, error) {
	env := make(map[string]any, len(b))
	for name, v := range b {
		if identPattern.MatchString(name) {
			env[name] = v.native()
		}
	}
	src, err := resolveRefs(code, b, env)
	if err != nil {
		return Value{}, err
	}

	opts := append([]expr.Option{expr.Env(env)}, l.options...)
	program, err := expr.Compile(src, opts...)
	if err != nil {
		return Value{}, err
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return Value{}, err
	}
	return fromNative(out)
}

// resolveRefs replaces every reference outside quoted text by a generated
// name bound in env
func resolveRefs(code string, b Bindings, env map[string]any) (string, error) {
	var (
		out   strings.Builder
		quote byte
		n     int
	)
	for i := 0; i < len(code); {
		c := code[i]
		switch {
		case quote != 0:
			if c == '\\' && i+1 < len(code) {
				out.WriteString(code[i : i+2])
				i += 2
				continue
			}
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '[':
			loc := refPattern.FindStringSubmatchIndex(code[i:])
			if loc != nil && loc[0] == 0 {
				kind := code[i+loc[2] : i+loc[3]]
				name := strings.TrimSpace(code[i+loc[4] : i+loc[5]])
				key, err := refKey(kind, name)
				if err != nil {
					return "", err
				}
				v, ok := b[key]
				if !ok {
					return "", fmt.Errorf("unbound variable %q", key)
				}
				id := fmt.Sprintf("__ref%d", n)
				n++
				env[id] = v.native()
				out.WriteString(id)
				i += loc[1]
				continue
			}
		}
		out.WriteByte(c)
		i++
	}
	return out.String(), nil
}

func refKey(kind, name string) (string, error) {
	switch kind {
	case "var":
		return name, nil
	case "input":
		return InputPrefix + name, nil
	}
	return "", fmt.Errorf("unknown reference kind %q", kind)
}

func concatText(params ...any) (any, error) {
	var sb strings.Builder
	for _, p := range params {
		v, err := fromNative(p)
		if err != nil {
			return nil, err
		}
		sb.WriteString(v.String())
	}
	return sb.String(), nil
}

func textEqual(params ...any) (any, error) {
	l, err := concatText(params[0])
	if err != nil {
		return nil, err
	}
	r, err := concatText(params[1])
	if err != nil {
		return nil, err
	}
	return l == r, nil
}

func textNotEqual(params ...any) (any, error) {
	eq, err := textEqual(params...)
	if err != nil {
		return nil, err
	}
	return !eq.(bool), nil
}

func (v Value) native() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	default:
		return v.s
	}
}

func fromNative(x any) (Value, error) {
	switch t := x.(type) {
	case bool:
		return Bool(t), nil
	case string:
		return Text(t), nil
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case float64:
		if math.IsInf(t, 0) || math.IsNaN(t) {
			return Value{}, fmt.Errorf("result %v is not a finite number", t)
		}
		return Number(t), nil
	}
	return Value{}, fmt.Errorf("unsupported result type %T", x)
}
