// Package config loads, normalizes, and validates reclaim configuration data.
//
// It supplies repository defaults, reads a TOML file, overlays the
// IMMICH_API_BASE-style environment variables (optionally seeded from a
// dotenv file), expands user paths, and validates encoder parameter ranges.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical asset types, and clear validation errors.
package config
