package model

import "time"

// CheckStatus is the outcome of one verification check
type CheckStatus string

const (
	CheckPassed  CheckStatus = "passed"
	CheckFailed  CheckStatus = "failed"
	CheckWarning CheckStatus = "warning"
	CheckSkipped CheckStatus = "skipped"
)

// OverallStatus grades a full verification run
type OverallStatus string

const (
	VerificationSuccess OverallStatus = "success"
	VerificationPartial OverallStatus = "partial"
	VerificationFailed  OverallStatus = "failed"
)

// CheckResult is one independently timed verification check. Critical
// checks fail the whole run when they fail.
type CheckResult struct {
	Name       string      `json:"name"`
	Status     CheckStatus `json:"status"`
	Critical   bool        `json:"critical"`
	DurationMs float64     `json:"durationMs"`
	Message    string      `json:"message,omitempty"`
}

// VerificationResult aggregates one verifyDeployment run against a target.
type VerificationResult struct {
	Target        string        `json:"target"`
	Checks        []CheckResult `json:"checks"`
	SuccessRate   float64       `json:"successRate"`
	OverallStatus OverallStatus `json:"overallStatus"`
	StartedAt     time.Time     `json:"startedAt"`
	DurationMs    float64       `json:"durationMs"`
}

// FailedChecks lists the names of checks that failed.
func (r *VerificationResult) FailedChecks() []string {
	var out []string
	for _, c := range r.Checks {
		if c.Status == CheckFailed {
			out = append(out, c.Name)
		}
	}
	return out
}
