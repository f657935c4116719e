package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.applyEnv(); err != nil {
		return err
	}
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStrings()
	return nil
}

func (c *Config) applyEnv() error {
	if value, ok := os.LookupEnv(EnvThreshold); ok && strings.TrimSpace(value) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvThreshold, err)
		}
		c.Dedup.PerceptualThreshold = n
	}
	if value, ok := os.LookupEnv(EnvWorkers); ok && strings.TrimSpace(value) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWorkers, err)
		}
		c.Dedup.Workers = n
	}
	if value, ok := os.LookupEnv(EnvLogLevel); ok && strings.TrimSpace(value) != "" {
		c.Logging.Level = value
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.InputDir, err = expandPath(strings.TrimSpace(c.Paths.InputDir)); err != nil {
		return fmt.Errorf("paths.input_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.AuditDir) == "" {
		c.Paths.AuditDir = defaultAuditDir
	}
	if c.Paths.AuditDir, err = expandPath(c.Paths.AuditDir); err != nil {
		return fmt.Errorf("paths.audit_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DBPath) == "" {
		c.Paths.DBPath = defaultDBPath
	}
	if c.Paths.DBPath, err = expandPath(c.Paths.DBPath); err != nil {
		return fmt.Errorf("paths.db_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeStrings() {
	c.Hashing.ContentDigest = lowerOr(c.Hashing.ContentDigest, defaultContentDigest)
	c.Hashing.PerceptualAlgorithm = lowerOr(c.Hashing.PerceptualAlgorithm, defaultPerceptualAlgorithm)
	c.Output.Naming = lowerOr(c.Output.Naming, defaultNaming)
	c.Logging.Format = lowerOr(c.Logging.Format, defaultLogFormat)
	c.Logging.Level = lowerOr(c.Logging.Level, defaultLogLevel)
}

func lowerOr(value, fallback string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return fallback
	}
	return value
}
