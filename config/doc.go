// Package config loads and validates zipstage configuration and applies live
// property updates.
//
// Configuration is layered: built-in defaults, then each file in order, then
// ZIPSTAGE_* environment variables. Files may be JSON, YAML or TOML, chosen by
// extension. Duration fields accept strings such as "2s" or "1d". The merged
// document is checked against an embedded JSON schema and then by
// Config.Validate.
//
//	loader := config.NewLoader()
//	loader.AddLayer("zipstage.yaml")
//	loader.AddLayer("zipstage.local.toml")
//	loader.EnableValidation(true)
//	cfg, err := loader.Load()
//
// A stage entry names a registered unit type and how it is wired:
//
//	stages:
//	  mix:
//	    type: overlay
//	    error_policy: drop
//	    properties:
//	      alpha: 0.25
//	    subjects:
//	      inputs:
//	        base: cams.front
//
// When properties are enabled, PropertyManager watches a NATS KV bucket and
// forwards each "<stage>.<property>" value to Stage.SetProperty.
package config
