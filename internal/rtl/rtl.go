// Package rtl holds the register-transfer statements a generated state body
// is made of. The same statements are rendered to VHDL and executed by the
// cycle simulator, so every construct here has one clocked meaning: reads
// see the value before the clock edge, assignments take effect after it,
// and an unassigned register keeps its value.
package rtl

// Expr is a value or condition.
type Expr interface {
	isExpr()
}

// Ref reads a whole signal or port.
type Ref struct {
	Name string
}

// Slice is the bit range Name(Hi downto Lo).
type Slice struct {
	Name   string
	Hi, Lo int
}

// Logic is a single std_logic literal.
type Logic bool

// Vector is a bit-string literal such as "1".
type Vector string

// Fill sets every bit of the target to the same value.
type Fill bool

// Inc is Name + 1, wrapping at the signal width.
type Inc struct {
	Name string
}

// Eq compares two values.
type Eq struct {
	Left, Right Expr
}

func (Ref) isExpr()    {}
func (Slice) isExpr()  {}
func (Logic) isExpr()  {}
func (Vector) isExpr() {}
func (Fill) isExpr()   {}
func (Inc) isExpr()    {}
func (Eq) isExpr()     {}

// Stmt is one statement of a state body.
type Stmt interface {
	isStmt()
}

// Assign schedules Value into Target (a Ref or Slice) at the clock edge.
type Assign struct {
	Target  Expr
	Value   Expr
	Comment string
}

// If selects one of two statement lists.
type If struct {
	Cond Expr
	Then []Stmt
	Else []Stmt
}

// Goto makes State the current state on the next cycle.
type Goto struct {
	State string
}

// Resume transfers to the state held in the continuation register.
type Resume struct{}

// Hold keeps the machine in the state being executed.
type Hold struct{}

// SetNext loads the continuation register.
type SetNext struct {
	State string
}

// Text is an opaque line of user code.
type Text struct {
	Line string
}

func (Assign) isStmt()  {}
func (If) isStmt()      {}
func (Goto) isStmt()    {}
func (Resume) isStmt()  {}
func (Hold) isStmt()    {}
func (SetNext) isStmt() {}
func (Text) isStmt()    {}

// Set assigns a whole signal.
func Set(name string, value Expr) Assign {
	return Assign{Target: Ref{Name: name}, Value: value}
}

// Increment adds one to a counter register.
func Increment(name string) Assign {
	return Assign{Target: Ref{Name: name}, Value: Inc{Name: name}}
}

// High is the condition name = '1'.
func High(name string) Eq {
	return Eq{Left: Ref{Name: name}, Right: Logic(true)}
}

// Low is the condition name = '0'.
func Low(name string) Eq {
	return Eq{Left: Ref{Name: name}, Right: Logic(false)}
}

// Walk calls fn for every statement in body, descending into both branches
// of each If. It stops early when fn returns false.
func Walk(body []Stmt, fn func(Stmt) bool) bool {
	for _, s := range body {
		if !fn(s) {
			return false
		}
		if st, ok := s.(If); ok {
			if !Walk(st.Then, fn) || !Walk(st.Else, fn) {
				return false
			}
		}
	}
	return true
}

// Transition is where a statement list sends the machine.
type Transition struct {
	State  string
	Resume bool
	Hold   bool
}

// Targets lists every transition a body can take, in statement order.
func Targets(body []Stmt) []Transition {
	var out []Transition
	Walk(body, func(s Stmt) bool {
		switch st := s.(type) {
		case Goto:
			out = append(out, Transition{State: st.State})
		case Resume:
			out = append(out, Transition{Resume: true})
		case Hold:
			out = append(out, Transition{Hold: true})
		}
		return true
	})
	return out
}
