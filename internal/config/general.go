package config

// GeneralConfig holds settings that don't belong to a single subsystem.
type GeneralConfig struct {
	// Directory for the device store and log files. "~" expands to the
	// user home directory at startup.
	DataDir string `mapstructure:"DATA_DIR" json:"data_dir" validate:"required"`
}
