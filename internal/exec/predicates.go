package exec

import (
	"fmt"
	"strings"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/matthewbaird/smartquery/internal/plan"
)

// predicate renders one plan predicate into a parameterized SQL
// predicate. Plain column operands use the builder's native helpers;
// computed expressions (date parts, boolean hybrids) fall through to a
// raw predicate written by hand.
func (r *renderer) predicate(p plan.Predicate) (*entsql.Predicate, error) {
	switch pr := p.(type) {
	case plan.Comparison:
		if col, ok := pr.Left.(plan.Column); ok {
			c := r.column(col)
			switch pr.Op {
			case plan.OpEQ:
				return entsql.EQ(c, pr.Value), nil
			case plan.OpNE:
				return entsql.NEQ(c, pr.Value), nil
			case plan.OpGT:
				return entsql.GT(c, pr.Value), nil
			case plan.OpGE:
				return entsql.GTE(c, pr.Value), nil
			case plan.OpLT:
				return entsql.LT(c, pr.Value), nil
			case plan.OpLE:
				return entsql.LTE(c, pr.Value), nil
			}
		}
		left, err := r.exprString(pr.Left)
		if err != nil {
			return nil, err
		}
		op, value := pr.Op, pr.Value
		return entsql.P(func(b *entsql.Builder) {
			b.WriteString(left)
			b.WriteString(" " + op.String() + " ")
			b.Arg(value)
		}), nil

	case plan.In:
		left, err := r.operand(pr.Left)
		if err != nil {
			return nil, err
		}
		if len(pr.Values) == 0 {
			// IN over an empty list matches nothing; NOT IN matches all.
			if pr.Negate {
				return entsql.P(func(b *entsql.Builder) { b.WriteString("1 = 1") }), nil
			}
			return entsql.P(func(b *entsql.Builder) { b.WriteString("1 = 0") }), nil
		}
		if pr.Negate {
			return entsql.NotIn(left, pr.Values...), nil
		}
		return entsql.In(left, pr.Values...), nil

	case plan.Between:
		left, err := r.operand(pr.Left)
		if err != nil {
			return nil, err
		}
		return entsql.And(entsql.GTE(left, pr.Lo), entsql.LTE(left, pr.Hi)), nil

	case plan.Null:
		left, err := r.operand(pr.Left)
		if err != nil {
			return nil, err
		}
		if pr.Null {
			return entsql.IsNull(left), nil
		}
		return entsql.NotNull(left), nil

	case plan.Match:
		left, err := r.operand(pr.Left)
		if err != nil {
			return nil, err
		}
		pattern := pr.Pattern
		if pr.Insensitive {
			return entsql.P(func(b *entsql.Builder) {
				b.WriteString("LOWER(").WriteString(left).WriteString(") LIKE LOWER(")
				b.Arg(pattern)
				b.WriteString(")")
			}), nil
		}
		return entsql.Like(left, pattern), nil

	case plan.And:
		if len(pr.Preds) == 0 {
			return entsql.P(func(b *entsql.Builder) { b.WriteString("1 = 1") }), nil
		}
		parts, err := r.predicates(pr.Preds)
		if err != nil {
			return nil, err
		}
		if len(parts) == 1 {
			return parts[0], nil
		}
		return entsql.And(parts...), nil

	case plan.Or:
		if len(pr.Preds) == 0 {
			return entsql.P(func(b *entsql.Builder) { b.WriteString("1 = 0") }), nil
		}
		parts, err := r.predicates(pr.Preds)
		if err != nil {
			return nil, err
		}
		if len(parts) == 1 {
			return parts[0], nil
		}
		return entsql.Or(parts...), nil

	default:
		return nil, fmt.Errorf("unsupported predicate of type %T", p)
	}
}

func (r *renderer) predicates(ps []plan.Predicate) ([]*entsql.Predicate, error) {
	out := make([]*entsql.Predicate, 0, len(ps))
	for _, p := range ps {
		pr, err := r.predicate(p)
		if err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, nil
}

// column renders a column reference through its registered table view so
// quoting follows the statement's dialect.
func (r *renderer) column(c plan.Column) string {
	if t := r.tables[c.Table]; t != nil {
		return t.C(c.Name)
	}
	// A column of a table the statement never registered; quote it
	// directly. This happens for hybrid expressions over the base table
	// of a child loader statement.
	return fmt.Sprintf("`%s`.`%s`", c.Table, c.Name)
}

// operand renders any expression as a string usable on the left side of
// the builder's native predicate helpers. The helpers write it with
// Builder.Ident, which passes through anything already containing quote
// or function characters.
func (r *renderer) operand(e plan.Expr) (string, error) {
	return r.exprString(e)
}

// exprString renders an expression to SQL text with any literals
// inlined. It is used for select lists, ORDER BY, GROUP BY and computed
// predicate operands, none of which can carry bound parameters through
// the builder's string-based clause APIs.
func (r *renderer) exprString(e plan.Expr) (string, error) {
	switch ex := e.(type) {
	case plan.Column:
		return r.column(ex), nil
	case plan.DatePart:
		of, err := r.exprString(ex.Of)
		if err != nil {
			return "", err
		}
		format, ok := strftimeFormats[ex.Part]
		if !ok {
			return "", fmt.Errorf("unsupported date part '%s'", ex.Part)
		}
		return fmt.Sprintf("CAST(STRFTIME('%s', %s) AS INTEGER)", format, of), nil
	case plan.BoolExpr:
		p, err := r.predicate(ex.Pred)
		if err != nil {
			return "", err
		}
		q, args := p.Query()
		return "(" + inlineArgs(q, args) + ")", nil
	default:
		return "", fmt.Errorf("unsupported expression of type %T", e)
	}
}

var strftimeFormats = map[string]string{
	"year":  "%Y",
	"month": "%m",
	"day":   "%d",
}

// inlineArgs substitutes rendered literals for the placeholders of a
// parameterized fragment so it can appear in clause positions that do not
// accept bound arguments.
func inlineArgs(q string, args []any) string {
	if len(args) == 0 {
		return q
	}
	var sb strings.Builder
	i := 0
	for _, ch := range q {
		if ch == '?' && i < len(args) {
			sb.WriteString(literal(args[i]))
			i++
			continue
		}
		sb.WriteRune(ch)
	}
	return sb.String()
}

func literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if x {
			return "1"
		}
		return "0"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", x)
	case float32, float64:
		return fmt.Sprintf("%v", x)
	case fmt.Stringer:
		return "'" + strings.ReplaceAll(x.String(), "'", "''") + "'"
	default:
		return "'" + strings.ReplaceAll(fmt.Sprintf("%v", x), "'", "''") + "'"
	}
}
