package models

// Outcome classifies the result of one detail-fetch operation. The retry
// loop branches on this tag instead of sniffing error message strings.
type Outcome string

const (
	OutcomeUnset       Outcome = ""              // Zero value = not yet classified
	OutcomeSuccess     Outcome = "success"       // Record parsed and returned
	OutcomeSkipped     Outcome = "skipped"       // Fresh cached record, no work done
	OutcomeNotFound    Outcome = "not_found"     // Site reported no results (terminal, not an error)
	OutcomeRateLimited Outcome = "rate_limited"  // Interstitial rate-limit page (free retry after cooldown)
	OutcomeParseFailed Outcome = "parse_failed"  // Missing link / under-populated parse (counted retry)
	OutcomeNetwork     Outcome = "network_error" // Transport failure or bad status (counted retry)
)

// String implements fmt.Stringer for logging
func (o Outcome) String() string {
	if o == "" {
		return "unset"
	}
	return string(o)
}

// Terminal reports whether the outcome ends processing for an ID: either a
// definitive answer or a soft skip. Rate-limit and transient failures are
// not terminal; the orchestrator keeps retrying within its bound.
func (o Outcome) Terminal() bool {
	switch o {
	case OutcomeSuccess, OutcomeSkipped, OutcomeNotFound:
		return true
	}
	return false
}
