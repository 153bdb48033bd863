package domain

// =============================================================================
// Validation Results
// =============================================================================

// ResultKind is the scored outcome of a single validation check.
type ResultKind string

const (
	KindPass ResultKind = "PASS"
	KindFail ResultKind = "FAIL"
	KindWarn ResultKind = "WARN"
)

// Result is one validation outcome. Results are appended in check
// execution order and never mutated or removed.
type Result struct {
	Check   string
	Kind    ResultKind
	Message string
}

// Pass builds a passing result.
func Pass(check, message string) Result {
	return Result{Check: check, Kind: KindPass, Message: message}
}

// Fail builds a failing result.
func Fail(check, message string) Result {
	return Result{Check: check, Kind: KindFail, Message: message}
}

// Warn builds a warning result. Warnings never affect the verdict.
func Warn(check, message string) Result {
	return Result{Check: check, Kind: KindWarn, Message: message}
}
