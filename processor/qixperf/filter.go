// Package qixperf decides which QIX performance events are worth forwarding.
package qixperf

import "log/slog"

// EventData is the subset of a qix-perf event the filter looks at.
type EventData struct {
	AppID      string
	AppName    string
	ObjectType string
	ObjectID   string
	Method     string
}

// ProcessAppSpecificFilters returns true when the first app filter whose
// include list matches the event also passes its object type, object id and
// method policies. Later filters are not consulted once one matches and
// accepts.
func ProcessAppSpecificFilters(ev EventData, rs RuleSet) bool {
	if !rs.AppSpecific.Enable {
		return false
	}
	for _, f := range rs.AppSpecific.Apps {
		if !matchesAny(f.Include, ev.AppID, ev.AppName) {
			continue
		}
		if !f.ObjectType.Policy().Allows(ev.ObjectType) {
			continue
		}
		if !f.ObjectID.Policy().Allows(ev.ObjectID) {
			continue
		}
		if !f.Method.Policy().Allows(ev.Method) {
			continue
		}
		return true
	}
	return false
}

// ProcessAllAppsFilters applies the all-apps policy: app exclusion, then
// object type, then method.
func ProcessAllAppsFilters(ev EventData, rs RuleSet) bool {
	all := rs.AllApps
	if !all.Enable {
		return false
	}
	if matchesAny(all.AppExclude, ev.AppID, ev.AppName) {
		return false
	}
	return all.ObjectType.Policy().Allows(ev.ObjectType) && all.Method.Policy().Allows(ev.Method)
}

// Accept reports whether either policy accepts the event.
func Accept(ev EventData, rs RuleSet) bool {
	return ProcessAppSpecificFilters(ev, rs) || ProcessAllAppsFilters(ev, rs)
}

// Filter binds a RuleSet for the decoder.
type Filter struct {
	rules RuleSet
}

// NewFilter binds rs and logs every setting that has no effect.
func NewFilter(rs RuleSet, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	for _, w := range rs.Warnings() {
		logger.Warn("QIX performance filter setting has no effect", "component", "qix-perf-filter", "detail", w)
	}
	return &Filter{rules: rs}
}

// Accept evaluates ev against the bound rules.
func (f *Filter) Accept(ev EventData) bool {
	return Accept(ev, f.rules)
}
