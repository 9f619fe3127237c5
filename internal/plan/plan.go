// Package plan defines the immutable value types that make up a compiled
// query plan: column expressions, predicates, join edges, ordering and
// grouping clauses, and eager-load loader options.
//
// A *Plan is produced by the query compilers and handed to an execution
// engine. Plans carry no connection state and are never mutated after the
// terminal fetch call that submits them.
package plan

// Strategy selects how a related collection is fetched by the execution
// engine.
type Strategy string

const (
	// Joined loads the relationship in the same statement via a join.
	// Fetching a to-many relationship this way multiplies parent rows;
	// callers must use a unique fetch to fold them back.
	Joined Strategy = "joined"
	// Subquery loads the relationship in a second statement constrained
	// by the parent query as a subquery.
	Subquery Strategy = "subquery"
	// SelectIn loads the relationship in a second statement constrained
	// by an IN list of parent keys.
	SelectIn Strategy = "selectin"
)

// Valid reports whether s is one of the three recognized strategy tags.
func (s Strategy) Valid() bool {
	switch s {
	case Joined, Subquery, SelectIn:
		return true
	}
	return false
}

// CompOp is a scalar comparison operator.
type CompOp int

const (
	OpEQ CompOp = iota
	OpNE
	OpGT
	OpGE
	OpLT
	OpLE
)

// String returns the SQL operator symbol.
func (op CompOp) String() string {
	switch op {
	case OpEQ:
		return "="
	case OpNE:
		return "<>"
	case OpGT:
		return ">"
	case OpGE:
		return ">="
	case OpLT:
		return "<"
	case OpLE:
		return "<="
	default:
		return "?"
	}
}

// ── Expressions ─────────────────────────────────────────────────────────────

// Expr is a value-producing expression usable as an operator operand or as
// an ordering/grouping clause.
type Expr interface{ expr() }

// Target qualifies column names with a table or alias name. Hybrid
// attribute builders receive the Target of the entity they are being
// resolved against so that the same definition works under any alias.
type Target string

// C returns the named column qualified by this target.
func (t Target) C(name string) Column {
	return Column{Table: string(t), Name: name}
}

// Column references a column of a table or alias.
type Column struct {
	Table string // base table name or join alias
	Name  string
}

func (Column) expr() {}

// DatePart extracts a calendar component (year, month or day) of a
// datetime expression as an integer.
type DatePart struct {
	Part string // "year", "month" or "day"
	Of   Expr
}

func (DatePart) expr() {}

// BoolExpr adapts a predicate into a value expression so that boolean
// computed properties can be compared with the ordinary operator table
// (for example is_adult=true) or used as sort keys.
type BoolExpr struct {
	Pred Predicate
}

func (BoolExpr) expr() {}

// ── Predicates ──────────────────────────────────────────────────────────────

// Predicate is a boolean condition attachable to a plan's WHERE clause.
type Predicate interface{ pred() }

// Comparison compares an expression against a literal value.
type Comparison struct {
	Left  Expr
	Op    CompOp
	Value any
}

func (Comparison) pred() {}

// In tests set membership against a literal list.
type In struct {
	Left   Expr
	Values []any
	Negate bool
}

func (In) pred() {}

// Between tests an inclusive range on both ends.
type Between struct {
	Left Expr
	Lo   any
	Hi   any
}

func (Between) pred() {}

// Null tests for SQL NULL (Null=true) or NOT NULL (Null=false).
type Null struct {
	Left Expr
	Null bool
}

func (Null) pred() {}

// Match is a LIKE-style pattern match. Insensitive forces a
// case-insensitive comparison regardless of collation.
type Match struct {
	Left        Expr
	Pattern     string
	Insensitive bool
}

func (Match) pred() {}

// And combines predicates conjunctively.
type And struct {
	Preds []Predicate
}

func (And) pred() {}

// Or combines predicates disjunctively.
type Or struct {
	Preds []Predicate
}

func (Or) pred() {}

// ── Plan structure ──────────────────────────────────────────────────────────

// Join is one join edge of a plan. Exactly one Join exists per distinct
// relationship path prefix referenced by the query.
type Join struct {
	FromTable   string // table or alias owning the relationship
	Relation    string // relationship attribute name on the owner
	Table       string // target entity's base table
	Alias       string // alias assigned to the target
	OwnerColumn string // column on FromTable side of the join condition
	RefColumn   string // column on the aliased target side
	Inner       bool   // INNER JOIN instead of LEFT OUTER JOIN
}

// OrderSpec is one ORDER BY clause.
type OrderSpec struct {
	Expr Expr
	Desc bool
}

// LoaderOption is one node of a compiled eager-load tree. Children apply
// to the relationship's target entity.
type LoaderOption struct {
	Relation string   // relationship attribute on the parent entity
	Target   string   // target entity name
	Strategy Strategy
	Inner    bool // joined strategy only: INNER instead of LEFT OUTER
	Children []LoaderOption
}

// Plan is the fully compiled, not-yet-executed representation of a query.
// Limit and Offset use -1 for "not set".
type Plan struct {
	Entity  string // root entity name
	Table   string // root entity's base table
	Columns []Expr // replaced column list; nil selects the whole entity
	Joins   []Join
	Where   []Predicate // combined conjunctively
	Order   []OrderSpec
	Group   []Expr
	Loaders []LoaderOption
	Limit   int
	Offset  int
}

// HasJoinedToMany reports whether any loader in the tree uses the joined
// strategy against a to-many relationship. toMany reports cardinality for
// a (parent entity, relation) pair.
func (p *Plan) HasJoinedToMany(toMany func(entity, relation string) bool) bool {
	var walk func(parent string, opts []LoaderOption) bool
	walk = func(parent string, opts []LoaderOption) bool {
		for _, o := range opts {
			if o.Strategy == Joined && toMany(parent, o.Relation) {
				return true
			}
			if walk(o.Target, o.Children) {
				return true
			}
		}
		return false
	}
	return walk(p.Entity, p.Loaders)
}
