// Package qixperf implements the accept/reject decision for QIX engine
// performance events.
//
// Two policies are evaluated per event. The app-specific policy only covers
// apps named in an include list; the first filter whose include list matches
// the app decides, and it accepts only if object type, object id and method
// all pass. If that does not accept, the all-apps policy covers every app
// not listed in appExclude, checking object type and method.
//
// Each sub-check uses the same duality:
//
//	allObjectTypes: true   -> everything except allObjectTypesExclude
//	allObjectTypes: false  -> only objectTypeInclude
//
// An include or appExclude entry with neither id nor name matches every app.
package qixperf
