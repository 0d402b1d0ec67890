// Package config loads and validates Breeze Core configuration.
//
// Configuration is read from a YAML file, with environment variable
// overrides for values that should not live on disk (cloud credentials,
// broker passwords, InfluxDB tokens).
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	interval := cfg.PollInterval() // clamped to [3s, 60s]
//
// Defaults are applied first, then the YAML file, then BREEZE_* environment
// variables. Validation runs last and reports all problems at once.
package config
