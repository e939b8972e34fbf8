package domain

import "strings"

// ExpressionDomain selects the dialect an Evaluator uses for an expression
type ExpressionDomain string

const (
	DomainMath ExpressionDomain = "MATH"
	DomainChem ExpressionDomain = "CHEM"
)

// Expression is a domain-tagged expression string. Its meaning is defined by
// the external evaluator; the core only stores and forwards it.
type Expression struct {
	Code   string           `json:"code" yaml:"code"`
	Domain ExpressionDomain `json:"domain,omitempty" yaml:"domain,omitempty"`
}

// MathExpression creates an expression in the MATH dialect
func MathExpression(code string) Expression {
	return Expression{Code: code, Domain: DomainMath}
}

// ChemExpression creates an expression in the CHEM dialect
func ChemExpression(code string) Expression {
	return Expression{Code: code, Domain: DomainChem}
}

// IsEmpty returns true if the expression has no code. Empty conditions are
// treated as satisfied by the transition resolver.
func (e Expression) IsEmpty() bool {
	return strings.TrimSpace(e.Code) == ""
}

// Dialect returns the expression domain, defaulting to MATH
func (e Expression) Dialect() ExpressionDomain {
	if e.Domain == "" {
		return DomainMath
	}
	return e.Domain
}

func (e Expression) String() string {
	return e.Code
}
