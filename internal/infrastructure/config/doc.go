// Package config loads and validates the tenant gateway configuration.
//
// Configuration is read from a YAML file, layered over hardcoded defaults,
// and finally overridden by TENANTGATE_* environment variables. Validate
// collects every problem before returning so an operator can fix the file
// in one pass.
//
// Sensitive values (the token signing secret, broker and InfluxDB
// credentials) should be supplied through the environment rather than the
// file. The signing secret must be at least 32 characters.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Gateway.MaxPageSize)
package config
