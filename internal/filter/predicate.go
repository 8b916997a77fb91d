package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Op is a comparison operator in a score predicate.
type Op string

const (
	OpLess         Op = "<"
	OpLessEqual    Op = "<="
	OpGreater      Op = ">"
	OpGreaterEqual Op = ">="
	OpEqual        Op = "=="
	OpNotEqual     Op = "!="
)

// Predicate compares the current value of one score type against a
// threshold. A result whose ledger has no value for the score type never
// matches.
type Predicate struct {
	Score string
	Op    Op
	Value float64
}

// Eval applies the predicate to a resolved score value.
func (p Predicate) Eval(v float64) bool {
	switch p.Op {
	case OpLess:
		return v < p.Value
	case OpLessEqual:
		return v <= p.Value
	case OpGreater:
		return v > p.Value
	case OpGreaterEqual:
		return v >= p.Value
	case OpEqual:
		return v == p.Value
	case OpNotEqual:
		return v != p.Value
	default:
		return false
	}
}

// String renders the predicate in its parseable form.
func (p Predicate) String() string {
	return fmt.Sprintf("%s %s %v", p.Score, p.Op, p.Value)
}

// Filter is a conjunction of predicates: a result matches when every
// predicate matches.
type Filter []Predicate

// String renders the filter in its parseable form.
func (f Filter) String() string {
	parts := make([]string, len(f))
	for i, p := range f {
		parts[i] = p.String()
	}
	return strings.Join(parts, "; ")
}

// Two-character operators first so "<=" never parses as "<" + "=0.05".
var predicateRe = regexp.MustCompile(`^(.+?)\s*(<=|>=|==|!=|<|>)\s*([^<>=!]+)$`)

// ParsePredicate parses a single "score op value" expression. Score
// names may contain spaces; the value must be a finite decimal number.
func ParsePredicate(s string) (Predicate, error) {
	m := predicateRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Predicate{}, fmt.Errorf("cannot parse predicate %q: want \"score op value\"", s)
	}
	name := strings.TrimSpace(m[1])
	if name == "" {
		return Predicate{}, fmt.Errorf("cannot parse predicate %q: empty score name", s)
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(m[3]), 64)
	if err != nil {
		return Predicate{}, fmt.Errorf("cannot parse predicate %q: bad value: %w", s, err)
	}
	return Predicate{Score: name, Op: Op(m[2]), Value: value}, nil
}

// Parse parses a filter expression: predicates separated by ";". An
// empty expression yields an empty filter, which matches everything.
func Parse(s string) (Filter, error) {
	var f Filter
	for _, part := range strings.Split(s, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		p, err := ParsePredicate(part)
		if err != nil {
			return nil, err
		}
		f = append(f, p)
	}
	return f, nil
}
