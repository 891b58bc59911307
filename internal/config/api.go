package config

import "time"

// APIConfig holds REST client settings.
type APIConfig struct {
	BaseURL string `mapstructure:"BASE_URL" json:"base_url" validate:"required,http_url"`

	// Timeout applies to every REST call. Uploads get their own, longer
	// budget because multipart bodies can be large on mobile networks.
	Timeout       time.Duration `mapstructure:"TIMEOUT"        json:"timeout"        validate:"required,timeout_duration"`
	UploadTimeout time.Duration `mapstructure:"UPLOAD_TIMEOUT" json:"upload_timeout" validate:"required,timeout_duration"`
}
