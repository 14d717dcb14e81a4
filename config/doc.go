// Package config defines the process configuration and its loader.
// Resolution order: defaults, then the YAML file, then SNOWGATE_*
// environment overrides. Validation is fail-fast: a process with an
// invalid configuration never starts serving.
package config
