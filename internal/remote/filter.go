package remote

import "fmt"

// Op is a comparison operator in a filter condition.
type Op string

const (
	OpEq      Op = "eq"
	OpNeq     Op = "neq"
	OpLte     Op = "lte"
	OpGte     Op = "gte"
	OpIsNull  Op = "is_null"
	OpNotNull Op = "not_null"
)

// Cond is one condition on a column. Conditions in a Filter are ANDed.
type Cond struct {
	Column string `json:"column"`
	Op     Op     `json:"op"`
	Value  any    `json:"value,omitempty"`
}

type Filter []Cond

func Where(conds ...Cond) Filter { return Filter(conds) }

func Eq(column string, v any) Cond  { return Cond{Column: column, Op: OpEq, Value: v} }
func Neq(column string, v any) Cond { return Cond{Column: column, Op: OpNeq, Value: v} }
func Lte(column string, v any) Cond { return Cond{Column: column, Op: OpLte, Value: v} }
func Gte(column string, v any) Cond { return Cond{Column: column, Op: OpGte, Value: v} }
func IsNull(column string) Cond     { return Cond{Column: column, Op: OpIsNull} }
func NotNull(column string) Cond    { return Cond{Column: column, Op: OpNotNull} }

// ByID is the usual single-row filter.
func ByID(id string) Filter { return Where(Eq("id", id)) }

// Validate checks operators and that value-taking operators have a value.
func (f Filter) Validate() error {
	for _, c := range f {
		if c.Column == "" {
			return fmt.Errorf("filter: empty column")
		}
		switch c.Op {
		case OpEq, OpNeq, OpLte, OpGte:
			if c.Value == nil {
				return fmt.Errorf("filter: %s %s needs a value", c.Column, c.Op)
			}
		case OpIsNull, OpNotNull:
		default:
			return fmt.Errorf("filter: unknown operator %q", c.Op)
		}
	}
	return nil
}
