// Package config handles loading and validating the actuator configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with ACTUATOR_* environment variables
//   - Validation of required fields
//   - Default value handling (default actuator timings)
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token) should be set via
//     environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Coordinator.RegisterURL)
package config
