package config

import (
	"errors"
	"fmt"

	"datasetdedup/internal/consolidate"
	"datasetdedup/internal/hash"
	"datasetdedup/internal/match"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDedup(); err != nil {
		return err
	}
	if err := c.validateHashing(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDedup() error {
	if err := match.ValidateThreshold(c.Dedup.PerceptualThreshold); err != nil {
		return fmt.Errorf("dedup.perceptual_threshold: %w", err)
	}
	if c.Dedup.Workers <= 0 {
		return errors.New("dedup.workers must be positive")
	}
	if c.Dedup.CopyWorkers <= 0 {
		return errors.New("dedup.copy_workers must be positive")
	}
	return nil
}

func (c *Config) validateHashing() error {
	if _, err := hash.ParseDigest(c.Hashing.ContentDigest); err != nil {
		return fmt.Errorf("hashing.content_digest: %w", err)
	}
	if _, err := hash.ParseAlgorithm(c.Hashing.PerceptualAlgorithm); err != nil {
		return fmt.Errorf("hashing.perceptual_algorithm: %w", err)
	}
	return nil
}

func (c *Config) validateOutput() error {
	if _, err := consolidate.ParseNaming(c.Output.Naming); err != nil {
		return fmt.Errorf("output.naming: %w", err)
	}
	if c.Paths.AuditDir == "" {
		return errors.New("paths.audit_dir must be set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (want console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
