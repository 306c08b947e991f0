package queryir

import "github.com/roach88/archetype/internal/ir"

// Operator names as written in queries (matched case-insensitively).
const (
	OpAnd            = "AND"
	OpOr             = "OR"
	OpNot            = "NOT"
	OpEqual          = "EQUAL"
	OpNotEqual       = "NOT-EQUAL"
	OpGreaterThan    = "GREATER-THAN"
	OpGreaterOrEqual = "GREATER-OR-EQUAL"
	OpLessThan       = "LESS-THAN"
	OpLessOrEqual    = "LESS-OR-EQUAL"
	OpIn             = "IN"
	OpNotIn          = "NOT-IN"
	OpBetween        = "BETWEEN"
	OpContains       = "CONTAINS"
	OpStartsWith     = "STARTS-WITH"
	OpEndsWith       = "ENDS-WITH"
	OpExists         = "EXISTS"
	OpIsNull         = "IS-NULL"
	OpIsNotNull      = "IS-NOT-NULL"
	OpAny            = "ANY"
	OpAll            = "ALL"
)

// Selector names.
const (
	SelKey   = "KEY"
	SelPath  = "PATH"
	SelValue = "VALUE"
)

// ItemKey is the single key of the scope ANY and ALL evaluate against.
const ItemKey = "item"

// Expr is a boolean query node.
//
// This is a sealed interface - only types in this package implement it.
type Expr interface {
	exprNode() // Marker method - seals interface to this package
}

// Operand produces a value from the document being evaluated.
//
// This is a sealed interface - only types in this package implement it.
type Operand interface {
	operandNode() // Marker method - seals interface to this package
}

// And is true iff every operand is true. Empty is true.
type And struct {
	Exprs []Expr
}

// Or is true iff some operand is true. Empty is false.
type Or struct {
	Exprs []Expr
}

// Not negates its operand.
type Not struct {
	Expr Expr
}

// CompareOp is one of the six comparison operators.
type CompareOp string

const (
	CmpEqual          CompareOp = OpEqual
	CmpNotEqual       CompareOp = OpNotEqual
	CmpGreaterThan    CompareOp = OpGreaterThan
	CmpGreaterOrEqual CompareOp = OpGreaterOrEqual
	CmpLessThan       CompareOp = OpLessThan
	CmpLessOrEqual    CompareOp = OpLessOrEqual
)

// Compare relates two resolved operands.
type Compare struct {
	Op    CompareOp
	Left  Operand
	Right Operand
}

// In tests membership of Left in the sequence Right resolves to.
// A non-array right value is a one-element sequence; null is empty.
type In struct {
	Negate bool
	Left   Operand
	Right  Operand
}

// Between is Low <= Value <= High.
type Between struct {
	Value Operand
	Low   Operand
	High  Operand
}

// MatchOp is one of the text operators.
type MatchOp string

const (
	MatchContains   MatchOp = OpContains
	MatchStartsWith MatchOp = OpStartsWith
	MatchEndsWith   MatchOp = OpEndsWith
)

// StringMatch applies a case-sensitive text test to string-coerced operands.
type StringMatch struct {
	Op    MatchOp
	Left  Operand
	Right Operand
}

// Exists is true when the selected key is present, even with a null value.
type Exists struct {
	Selector Operand // *Key or *Path
}

// IsNull is true when the selected value is absent or null.
type IsNull struct {
	Negate   bool
	Selector Operand // *Key or *Path
}

// Quantifier evaluates Pred against {item: element} for each element of List.
// ALL is vacuously true on an empty list.
type Quantifier struct {
	All  bool
	List Operand
	Pred Expr
}

// Truth is a selector used where a condition is expected. It holds when the
// selected value is the boolean true.
type Truth struct {
	Operand Operand
}

// Unknown is a node that could not be understood. It always evaluates false.
type Unknown struct {
	Op     string
	Reason string
}

func (*And) exprNode()         {}
func (*Or) exprNode()          {}
func (*Not) exprNode()         {}
func (*Compare) exprNode()     {}
func (*In) exprNode()          {}
func (*Between) exprNode()     {}
func (*StringMatch) exprNode() {}
func (*Exists) exprNode()      {}
func (*IsNull) exprNode()      {}
func (*Quantifier) exprNode()  {}
func (*Truth) exprNode()       {}
func (*Unknown) exprNode()     {}

// Key reads a top-level key.
type Key struct {
	Name string
}

// Path walks dotted segments through objects and array indices.
type Path struct {
	Raw      string
	Segments []string
}

// Literal is a constant value.
type Literal struct {
	Value ir.IRValue
}

// SubExpr is a nested query used as an operand; it resolves to its boolean result.
type SubExpr struct {
	Expr Expr
}

func (*Key) operandNode()     {}
func (*Path) operandNode()    {}
func (*Literal) operandNode() {}
func (*SubExpr) operandNode() {}
