package strata

type action struct {
	steps     int
	byApplied bool
}

// ActionConfigurator customizes a single Migrate or Rollback
// invocation.
type ActionConfigurator func(a *action)

// WithSteps limits the invocation to n migrations. Migrate defaults
// to all pending, Rollback to one.
func WithSteps(n int) ActionConfigurator {
	return func(a *action) {
		a.steps = n
	}
}

// ByAppliedOrder makes Rollback pick the most recently applied
// migrations (ledger executed_at) instead of the most recently
// created ones. The two orders diverge when units were applied out
// of creation order, e.g. after a stepped Migrate.
func ByAppliedOrder() ActionConfigurator {
	return func(a *action) {
		a.byApplied = true
	}
}
