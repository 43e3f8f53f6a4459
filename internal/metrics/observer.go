package metrics

// PipelineObserver decouples the dispatcher and audit trail from the
// concrete metrics backend.
type PipelineObserver interface {
	RecordItemConsumed()
	RecordItemFiltered(reason string)
	RecordForward(outcome string)
	RecordRecencySkip()
	RecordReconnect(cause string)
	RecordForwardDuration(seconds float64)
	RecordAuditSinkError()
	RecordAuditDropped()
}

type NoopObserver struct{}

func (NoopObserver) RecordItemConsumed()             {}
func (NoopObserver) RecordItemFiltered(_ string)     {}
func (NoopObserver) RecordForward(_ string)          {}
func (NoopObserver) RecordRecencySkip()              {}
func (NoopObserver) RecordReconnect(_ string)        {}
func (NoopObserver) RecordForwardDuration(_ float64) {}
func (NoopObserver) RecordAuditSinkError()           {}
func (NoopObserver) RecordAuditDropped()             {}
