package borrowck

import "fmt"

// UnsupportedError indicates the procedure uses a construct the analysis
// cannot summarize (e.g. a raw-pointer dereference under a loop-carried
// location). It is recoverable at procedure granularity: the procedure is
// reported as not analyzed and remaining procedures continue.
type UnsupportedError struct {
	Construct string // what was encountered
	Procedure string
	Detail    string
}

func (e *UnsupportedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("unsupported construct %q in %s", e.Construct, e.Procedure)
	}
	return fmt.Sprintf("unsupported construct %q in %s: %s", e.Construct, e.Procedure, e.Detail)
}

// Unsupported creates an UnsupportedError for the given construct.
func Unsupported(construct, procedure, detail string) *UnsupportedError {
	return &UnsupportedError{Construct: construct, Procedure: procedure, Detail: detail}
}

// InternalError indicates a broken analysis invariant: a feasible cycle in
// the borrow graph, overlapping abstraction input/output sets, or conflicting
// branch constraints on the same node. It is a bug in the caller or the
// analysis, never in the analyzed program. Whether it aborts the process or
// degrades to a warning is decided by the strict switch in analysis.Config.
type InternalError struct {
	Msg       string
	Procedure string
	Block     int // control-flow block where the violation surfaced, -1 if unknown
}

func (e *InternalError) Error() string {
	if e.Block >= 0 {
		return fmt.Sprintf("internal: %s (procedure %s, block %d)", e.Msg, e.Procedure, e.Block)
	}
	if e.Procedure != "" {
		return fmt.Sprintf("internal: %s (procedure %s)", e.Msg, e.Procedure)
	}
	return "internal: " + e.Msg
}

// Internal creates an InternalError without location context.
func Internal(format string, args ...interface{}) *InternalError {
	return &InternalError{Msg: fmt.Sprintf(format, args...), Block: -1}
}

// At attaches procedure and block context to the error.
func (e *InternalError) At(procedure string, block int) *InternalError {
	e.Procedure = procedure
	e.Block = block
	return e
}
