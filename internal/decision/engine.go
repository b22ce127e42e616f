// Package decision holds the verification state machine. Everything here is
// pure: no I/O, no clocks.
package decision

// Transition returns the status after applying outcome to current and
// whether anything changed. Terminal states absorb every outcome, so
// re-running a decision is a no-op.
func Transition(current Status, out Outcome) (Status, bool) {
	if current.IsTerminal() {
		return current, false
	}
	if !out.Status.IsTerminal() {
		return current, false
	}
	return out.Status, true
}
