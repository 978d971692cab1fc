// Package config loads the sensewatch configuration.
//
// Configuration is YAML. Loader starts from Default, decodes each layer on
// top of the previous result and finally applies SENSEWATCH_* environment
// overrides:
//
//	loader := config.NewLoader()
//	loader.AddLayer("/etc/sensewatch/base.yaml")
//	loader.AddLayer("/etc/sensewatch/site.yaml") // overrides base
//	cfg, err := loader.Load()
//
// A layer only changes the keys it names. Lists are replaced, maps are
// merged and unknown keys are rejected. Validate fails on anything that
// must stop startup, such as a non-positive queue size or an enabled sink
// without its endpoint. Ineffective filter settings and malformed
// categorisation rules only produce RuleWarnings.
//
// The resulting *Config is never mutated after startup. Each component is
// handed its own part: StreamPair.For(stream) for listener and queue
// settings, SourcesConfig.Log and User for decoder enable maps, and the
// per-sink blocks under Sinks.
package config
