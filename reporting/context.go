package reporting

import "context"

type reporterKey struct{}

// WithReporter returns a context carrying r, so phase functions can report
// without holding a reference to the run's reporter stack. Inside an isolated
// worker the carried reporter is the proxy back to the controller.
func WithReporter(ctx context.Context, r Reporter) context.Context {
	return context.WithValue(ctx, reporterKey{}, r)
}

// FromContext returns the reporter carried by ctx. When none is present it
// returns an empty Multi, so callers never need a nil check.
func FromContext(ctx context.Context) Reporter {
	if r, ok := ctx.Value(reporterKey{}).(Reporter); ok {
		return r
	}
	return NewMulti()
}
