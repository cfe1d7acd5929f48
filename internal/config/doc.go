// Package config loads the YAML configuration of the LedgerAgent daemon,
// fills defaults and resolves secrets from the environment variables named
// by the *_env fields.
package config
