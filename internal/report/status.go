package report

type Outcome string

const (
	OutcomeSuccess            Outcome = "success"
	OutcomeSuccessWithFailure Outcome = "success_with_failure"
	OutcomeFailed             Outcome = "failed"
)

// Derive computes the outcome of a run whose suite execution completed
// with the given return code. A compile error fails the run regardless of
// the return code.
func Derive(returnCode int, compileErr error) (Outcome, string) {
	switch {
	case compileErr != nil:
		return OutcomeFailed, Truncate(compileErr.Error(), MaxMessageLength)
	case returnCode == 0:
		return OutcomeSuccess, ""
	default:
		return OutcomeSuccessWithFailure, ""
	}
}
