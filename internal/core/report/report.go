// Package report aggregates validation results into a final report.
// This is part of the Functional Core - all functions are pure with no I/O.
package report

import (
	"github.com/artpar/shipward/internal/core/domain"
)

// =============================================================================
// Report
// =============================================================================

// Verdict values for a completed validation pass.
const (
	VerdictPass = "PASS"
	VerdictFail = "FAIL"
)

// Report is the aggregate of a result sequence. Rebuilt fresh from the
// full sequence on every run; never updated incrementally.
type Report struct {
	Total       int
	Passed      int
	Failed      int
	Warned      int
	SuccessRate float64
	Results     []domain.Result
}

// Healthy reports whether the deployment passed overall. Warnings never
// affect the verdict; only failures do.
func (r Report) Healthy() bool {
	return r.Failed == 0
}

// Verdict returns the overall verdict string.
func (r Report) Verdict() string {
	if r.Healthy() {
		return VerdictPass
	}
	return VerdictFail
}

// Build aggregates a result sequence into a Report. A nil or empty
// sequence yields an empty report with a success rate of 0.
func Build(results []domain.Result) Report {
	r := Report{Results: results}
	for _, res := range results {
		r.Total++
		switch res.Kind {
		case domain.KindPass:
			r.Passed++
		case domain.KindFail:
			r.Failed++
		case domain.KindWarn:
			r.Warned++
		}
	}
	if r.Total > 0 {
		r.SuccessRate = float64(r.Passed) / float64(r.Total)
	}
	return r
}
