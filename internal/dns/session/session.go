// Package session provides the per-transaction environment store shared
// between the receipt-time and delivery-time hook invocations. Each store
// belongs to exactly one client transaction: it is created before the
// receipt hook runs and discarded after the delivery hook returns.
package session

import (
	"fmt"

	"github.com/haukened/rr-proxy/internal/dns/domain"
)

type valueKind uint8

const (
	kindString valueKind = iota
	kindInt
)

func (k valueKind) String() string {
	if k == kindString {
		return "string"
	}
	return "i64"
}

// value is a tagged union: either a UTF-8 string or a 64-bit signed
// integer. Retrieval checks the tag instead of reinterpreting bytes.
type value struct {
	kind valueKind
	str  string
	i64  int64
}

// Env is one transaction's key/value environment. Keys are arbitrary byte
// strings with last-write-wins semantics. Env is exclusively owned by the
// transaction processing it and is not safe for concurrent use.
type Env struct {
	id     string
	values map[string]value
}

// New returns an empty environment.
func New() *Env {
	return &Env{values: make(map[string]value)}
}

// Bind associates a session identifier with the environment.
func (e *Env) Bind(id string) { e.id = id }

// ID returns the bound session identifier, if any.
func (e *Env) ID() string { return e.id }

// SetString stores a string value under key, overwriting any prior value
// of either type.
func (e *Env) SetString(key, val string) {
	e.values[key] = value{kind: kindString, str: val}
}

// GetString retrieves the string stored under key. Absent keys fail with
// domain.ErrKeyNotFound; keys holding an integer fail with
// domain.ErrTypeMismatch.
func (e *Env) GetString(key string) (string, error) {
	v, ok := e.values[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrKeyNotFound, key)
	}
	if v.kind != kindString {
		return "", fmt.Errorf("%w: %q holds a %s value", domain.ErrTypeMismatch, key, v.kind)
	}
	return v.str, nil
}

// SetInt stores a 64-bit signed integer under key, overwriting any prior
// value of either type.
func (e *Env) SetInt(key string, val int64) {
	e.values[key] = value{kind: kindInt, i64: val}
}

// GetInt retrieves the integer stored under key. Absent keys fail with
// domain.ErrKeyNotFound; keys holding a string fail with
// domain.ErrTypeMismatch.
func (e *Env) GetInt(key string) (int64, error) {
	v, ok := e.values[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", domain.ErrKeyNotFound, key)
	}
	if v.kind != kindInt {
		return 0, fmt.Errorf("%w: %q holds a %s value", domain.ErrTypeMismatch, key, v.kind)
	}
	return v.i64, nil
}

// Len returns the number of stored keys.
func (e *Env) Len() int { return len(e.values) }
