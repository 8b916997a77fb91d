package filter

import (
	"fmt"
	"strings"
)

// CompileSQL compiles the filter into a query over the store's tables,
// selecting matching entity keys. The compiled query resolves each score
// type's current value the same way the ledger does: only the value at
// the highest application position counts.
//
// Values and score names are always parameterized, never interpolated.
// The query always carries ORDER BY with a binary-collated key so
// listings are deterministic across SQLite versions.
func CompileSQL(f Filter) (string, []any, error) {
	var (
		conds  []string
		params []any
	)
	for _, p := range f {
		op, err := sqlOp(p.Op)
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, fmt.Sprintf(`EXISTS (
  SELECT 1
  FROM applied_steps a
  JOIN applied_scores s ON s.applied_step_id = a.id
  JOIN score_types st ON st.id = s.score_type_id
  WHERE a.result_id = r.id
    AND st.name = ?
    AND s.value %s ?
    AND a.position = (
      SELECT MAX(a2.position)
      FROM applied_steps a2
      JOIN applied_scores s2 ON s2.applied_step_id = a2.id
      WHERE a2.result_id = r.id
        AND s2.score_type_id = st.id
    )
)`, op))
		params = append(params, p.Score, p.Value)
	}

	sql := "SELECT r.entity_key FROM results r"
	if len(conds) > 0 {
		sql += "\nWHERE " + strings.Join(conds, "\nAND ")
	}
	sql += "\nORDER BY r.entity_key COLLATE BINARY ASC"

	return sql, params, nil
}

// sqlOp maps a predicate operator onto its SQL spelling. Operators pass
// through an explicit whitelist; anything else is rejected rather than
// interpolated.
func sqlOp(op Op) (string, error) {
	switch op {
	case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		return string(op), nil
	case OpEqual:
		return "=", nil
	case OpNotEqual:
		return "<>", nil
	default:
		return "", fmt.Errorf("unsupported operator %q", op)
	}
}
