// Package config loads the YAML service configuration, fills in defaults,
// applies API keys from the environment (including .env files) and validates
// every section.
package config
