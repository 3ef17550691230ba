// Package config provides configuration management for Tether.
//
// Configuration is loaded from YAML files with environment variable
// overrides, layered over defaults and validated before use.
//
// # Configuration Loading
//
//	cfg, err := config.LoadConfig("tether.yaml")
//	cfg, err := config.LoadConfigWithEnvOverrides("tether.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention TETHER_SECTION_FIELD:
//
//   - TETHER_ENGINE_TICK_INTERVAL overrides engine.tick_interval
//   - TETHER_STORE_BACKEND overrides store.backend
//   - TETHER_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
//  1. Default values (defaults.go)
//  2. Values from the YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Singleton
//
// The CLI stores the loaded configuration with Initialize and reads it with
// GetConfig. Everything below the CLI receives its section explicitly so that
// several engines can be built side by side in tests.
package config
