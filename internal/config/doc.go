// Package config loads datasetdedup settings from TOML.
//
// Resolution order is an explicit --config path, ./datasetdedup.toml, then
// ~/.config/datasetdedup/config.toml. DATASETDEDUP_THRESHOLD,
// DATASETDEDUP_WORKERS and DATASETDEDUP_LOG_LEVEL override file values.
// Flag overrides are applied by the CLI after Load returns.
package config
