package telemetry

import (
	"fmt"
)

// API is how every component of the monitor reports what happened to it. Components never log
// directly, so tests can swap in a Recorder and assert on what was reported.
type API interface {
	// ReportBroken reports something an operator has to fix before the monitor can do its job
	// again: a cursor that cannot be persisted, a telegram session that cannot authorize, a bot
	// that no longer resolves.
	//
	// `id` names the operation that broke as `<component>.<operation>`, e.g. `detector.cursor` or
	// `client.resolve-bot`. The namespace added by ScopedAPI tells packages apart, so the id does
	// not repeat it. Details (the candidate id, the status code, the wrapped error) go into params,
	// not into the id. Ids are declared as `report_*` constants next to the code reporting them.
	//
	// Ids are lowercase, with dashes between the words of an operation.
	ReportBroken(id string, params ...any)

	// ReportWarning reports a failure the monitor recovers from by itself on a later iteration: a
	// transient catalog answer, a refresh cycle that failed, a purchase attempt whose payment handle
	// could not be obtained.
	ReportWarning(id string, params ...any)

	// ReportInfo reports progress during normal operation. Outcomes that are expected for the
	// account (a payment declined for a low Stars balance) are info, not warnings.
	// Unlike the other methods, params are alternating keys and values.
	ReportInfo(msg string, keysAndValues ...any)

	// ReportDebug reports per-request detail that is only useful while investigating.
	ReportDebug(msg string, params ...any)

	// ReportCount reports a running total (refreshes so far), each report is a data point, not
	// an increment.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id and message with the name of the package reporting it.
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) scoped(id string) string {
	return fmt.Sprintf("%s: %s", s.namespace, id)
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(s.scoped(id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(s.scoped(id), params...)
}

func (s ScopedAPI) ReportInfo(msg string, keysAndValues ...any) {
	s.inner.ReportInfo(s.scoped(msg), keysAndValues...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(s.scoped(msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(s.scoped(id), count)
}
