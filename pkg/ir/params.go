package ir

import (
	"encoding/json"
	"fmt"
)

// ParamKind discriminates the closed ParamValue sum.
type ParamKind int

const (
	ParamLiteral ParamKind = iota
	ParamSecretRef
	ParamExpression
)

const (
	tokenTypeKey       = "type"
	tokenSecretRef     = "secretRef"
	tokenExpression    = "expression"
	tokenRefKey        = "ref"
	tokenExpressionKey = "expression"
)

// ParamValue is a stage parameter: a plain JSON literal, an opaque secret
// reference, or a deferred expression. The three variants are discriminated
// at deserialization time by exact token shape, never by probing arbitrary
// objects for magic keys.
type ParamValue struct {
	Kind       ParamKind
	Literal    any    // ParamLiteral
	Ref        string // ParamSecretRef
	Expression string // ParamExpression
}

// LiteralValue wraps a plain JSON value.
func LiteralValue(v any) ParamValue { return ParamValue{Kind: ParamLiteral, Literal: v} }

// SecretRefValue wraps an opaque secret reference. The compiler only ever
// carries the reference string; the value behind it is resolved at runtime.
func SecretRefValue(ref string) ParamValue { return ParamValue{Kind: ParamSecretRef, Ref: ref} }

// ExpressionValue wraps a deferred expression.
func ExpressionValue(text string) ParamValue {
	return ParamValue{Kind: ParamExpression, Expression: text}
}

// ClassifyToken inspects a decoded JSON value and reports whether it is a
// tagged secret-reference or expression token. An object is a token only if
// it has exactly the token's two keys with string values, so a literal object
// that merely contains a "type" field stays a literal.
func ClassifyToken(v any) (ParamValue, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 2 {
		return ParamValue{}, false
	}
	typ, ok := m[tokenTypeKey].(string)
	if !ok {
		return ParamValue{}, false
	}
	switch typ {
	case tokenSecretRef:
		if ref, ok := m[tokenRefKey].(string); ok {
			return SecretRefValue(ref), true
		}
	case tokenExpression:
		if text, ok := m[tokenExpressionKey].(string); ok {
			return ExpressionValue(text), true
		}
	}
	return ParamValue{}, false
}

// UnmarshalJSON implements the discriminated decoding of the sum type.
func (p *ParamValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("param value: %w", err)
	}
	if tok, ok := ClassifyToken(raw); ok {
		*p = tok
		return nil
	}
	*p = LiteralValue(raw)
	return nil
}

// MarshalJSON emits the wire shape for each variant.
func (p ParamValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.wire())
}

// wire returns the JSON-ready representation of the value.
func (p ParamValue) wire() any {
	switch p.Kind {
	case ParamSecretRef:
		return map[string]any{tokenTypeKey: tokenSecretRef, tokenRefKey: p.Ref}
	case ParamExpression:
		return map[string]any{tokenTypeKey: tokenExpression, tokenExpressionKey: p.Expression}
	default:
		return p.Literal
	}
}

// Decoded returns the value as generic JSON, with tagged variants in their
// wire shape. Deep walkers (substitution, secret extraction) operate on this.
func (p ParamValue) Decoded() any { return p.wire() }
