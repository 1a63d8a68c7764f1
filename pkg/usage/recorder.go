package usage

// Outcome labels a metered operation for metrics.
type Outcome string

const (
	OutcomeAllowed  Outcome = "allowed"
	OutcomeDenied   Outcome = "denied"
	OutcomeExceeded Outcome = "limit_exceeded"
	OutcomeBypassed Outcome = "unlimited"
	OutcomeError    Outcome = "error"
)

// Recorder receives ledger events. pkg/metrics provides the Prometheus implementation.
type Recorder interface {
	RecordCheck(field Field, outcome Outcome)
	RecordConsume(field Field, count int64, outcome Outcome)
	RecordPlanChange(planID string)
	RecordReset(status string)
}

type nopRecorder struct{}

func (nopRecorder) RecordCheck(Field, Outcome)          {}
func (nopRecorder) RecordConsume(Field, int64, Outcome) {}
func (nopRecorder) RecordPlanChange(string)             {}
func (nopRecorder) RecordReset(string)                  {}
