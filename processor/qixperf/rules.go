package qixperf

import (
	"fmt"
	"slices"
)

// Policy is the include/exclude duality shared by object type, object id
// and method checks. With All set every value passes unless excluded,
// otherwise only listed values pass. Comparison is case-sensitive.
type Policy struct {
	All     bool
	Exclude []string
	Include []string
}

// Allows reports whether value passes the policy.
func (p Policy) Allows(value string) bool {
	if p.All {
		return !slices.Contains(p.Exclude, value)
	}
	return slices.Contains(p.Include, value)
}

// ignored describes a populated list that the All flag switches off, or
// returns "".
func (p Policy) ignored(name string) string {
	if p.All && len(p.Include) > 0 {
		return name + ": include list is ignored while all=true"
	}
	if !p.All && len(p.Exclude) > 0 {
		return name + ": exclude list is ignored while all=false"
	}
	return ""
}

// ObjectTypePolicy is the configuration form of the object type Policy.
type ObjectTypePolicy struct {
	AllObjectTypes        bool     `yaml:"allObjectTypes"`
	AllObjectTypesExclude []string `yaml:"allObjectTypesExclude"`
	ObjectTypeInclude     []string `yaml:"objectTypeInclude"`
}

func (p ObjectTypePolicy) Policy() Policy {
	return Policy{All: p.AllObjectTypes, Exclude: p.AllObjectTypesExclude, Include: p.ObjectTypeInclude}
}

// ObjectIDPolicy is the configuration form of the object id Policy.
type ObjectIDPolicy struct {
	AllObjectIDs        bool     `yaml:"allObjectIds"`
	AllObjectIDsExclude []string `yaml:"allObjectIdsExclude"`
	ObjectIDInclude     []string `yaml:"objectIdInclude"`
}

func (p ObjectIDPolicy) Policy() Policy {
	return Policy{All: p.AllObjectIDs, Exclude: p.AllObjectIDsExclude, Include: p.ObjectIDInclude}
}

// MethodPolicy is the configuration form of the method Policy.
type MethodPolicy struct {
	AllMethods        bool     `yaml:"allMethods"`
	AllMethodsExclude []string `yaml:"allMethodsExclude"`
	MethodInclude     []string `yaml:"methodInclude"`
}

func (p MethodPolicy) Policy() Policy {
	return Policy{All: p.AllMethods, Exclude: p.AllMethodsExclude, Include: p.MethodInclude}
}

// AppRef identifies an app by id, name or both. Empty keys are wildcards,
// so an AppRef with neither key set matches every app.
type AppRef struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Matches reports whether every key set in r equals the event's value.
func (r AppRef) Matches(appID, appName string) bool {
	if r.ID != "" && r.ID != appID {
		return false
	}
	if r.Name != "" && r.Name != appName {
		return false
	}
	return true
}

func matchesAny(refs []AppRef, appID, appName string) bool {
	for _, r := range refs {
		if r.Matches(appID, appName) {
			return true
		}
	}
	return false
}

// AppFilter is one entry of the app-specific policy.
type AppFilter struct {
	Include    []AppRef         `yaml:"include"`
	ObjectType ObjectTypePolicy `yaml:"objectType"`
	ObjectID   ObjectIDPolicy   `yaml:"objectId"`
	Method     MethodPolicy     `yaml:"method"`
}

// AppSpecific monitors only explicitly included apps.
type AppSpecific struct {
	Enable bool        `yaml:"enable"`
	Apps   []AppFilter `yaml:"app"`
}

// AllApps monitors every app unless excluded.
type AllApps struct {
	Enable     bool             `yaml:"enable"`
	AppExclude []AppRef         `yaml:"appExclude"`
	ObjectType ObjectTypePolicy `yaml:"objectType"`
	Method     MethodPolicy     `yaml:"method"`
}

// RuleSet holds both policies. It is read-only once built.
type RuleSet struct {
	AppSpecific AppSpecific `yaml:"appSpecific"`
	AllApps     AllApps     `yaml:"allApps"`
}

// Warnings lists settings that have no effect: lists switched off by their
// All flag and app filters with an empty include list, which match nothing.
// The rule set is still evaluated as written.
func (rs RuleSet) Warnings() []string {
	var out []string
	add := func(w string) {
		if w != "" {
			out = append(out, w)
		}
	}
	for i, f := range rs.AppSpecific.Apps {
		prefix := fmt.Sprintf("appSpecific.app[%d]", i)
		if len(f.Include) == 0 {
			add(prefix + ": empty include list matches no app")
		}
		add(f.ObjectType.Policy().ignored(prefix + ".objectType"))
		add(f.ObjectID.Policy().ignored(prefix + ".objectId"))
		add(f.Method.Policy().ignored(prefix + ".method"))
	}
	add(rs.AllApps.ObjectType.Policy().ignored("allApps.objectType"))
	add(rs.AllApps.Method.Policy().ignored("allApps.method"))
	return out
}
