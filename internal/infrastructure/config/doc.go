// Package config loads and validates the irrigation service configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading an optional .env file into the environment (godotenv)
//   - Overriding with IRRIGATION_* environment variables
//   - Validation of required fields and of the auto-control thresholds
//
// Secrets (JWT secret, MQTT password, InfluxDB token) should be supplied
// through the environment rather than the YAML file.
//
// Usage:
//
//	_ = config.LoadEnvFile(".env")
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Irrigation.LowThreshold)
package config
