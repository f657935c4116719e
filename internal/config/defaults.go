package config

const (
	defaultConfigPath          = "~/.config/datasetdedup/config.toml"
	projectConfigName          = "datasetdedup.toml"
	defaultAuditDir            = "./dedup_audit"
	defaultDBPath              = "~/.datasetdedup/runs.db"
	defaultThreshold           = 5
	defaultWorkers             = 8
	defaultCopyWorkers         = 4
	defaultContentDigest       = "murmur3"
	defaultPerceptualAlgorithm = "phash"
	defaultNaming              = "original"
	defaultAuditCopies         = true
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Environment variables that override file values
const (
	EnvThreshold = "DATASETDEDUP_THRESHOLD"
	EnvWorkers   = "DATASETDEDUP_WORKERS"
	EnvLogLevel  = "DATASETDEDUP_LOG_LEVEL"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			AuditDir: defaultAuditDir,
			DBPath:   defaultDBPath,
		},
		Dedup: Dedup{
			PerceptualThreshold: defaultThreshold,
			Workers:             defaultWorkers,
			CopyWorkers:         defaultCopyWorkers,
		},
		Hashing: Hashing{
			ContentDigest:       defaultContentDigest,
			PerceptualAlgorithm: defaultPerceptualAlgorithm,
		},
		Output: Output{
			Naming:      defaultNaming,
			AuditCopies: defaultAuditCopies,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
