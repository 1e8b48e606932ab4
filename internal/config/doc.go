// Package config loads and validates application configuration.
//
// Configuration comes from two layers: an optional YAML file named by the
// CONFIG_FILE environment variable, overlaid by individual environment
// variables. Environment variables always win, so a deployment can ship a
// base file and still override single values per instance.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    // handle error
//	}
//	if err := cfg.Validate(); err != nil {
//	    // configuration is incomplete or inconsistent
//	}
//
// Validate reports every failure at once via errors.Join rather than stopping
// at the first problem.
package config
