package config

import "time"

// RealtimeConfig holds event-channel settings.
type RealtimeConfig struct {
	SocketURL      string        `mapstructure:"SOCKET_URL"      json:"socket_url"      validate:"required,ws_url"`
	ConnectTimeout time.Duration `mapstructure:"CONNECT_TIMEOUT" json:"connect_timeout" validate:"required,timeout_duration"`

	// Reconnection is bounded: up to MaxReconnectAttempts, starting at
	// ReconnectDelay and doubling until MaxReconnectDelay.
	MaxReconnectAttempts int           `mapstructure:"MAX_RECONNECT_ATTEMPTS" json:"max_reconnect_attempts" validate:"required,min=1,max=100"`
	ReconnectDelay       time.Duration `mapstructure:"RECONNECT_DELAY"        json:"reconnect_delay"        validate:"required,timeout_duration"`
	MaxReconnectDelay    time.Duration `mapstructure:"MAX_RECONNECT_DELAY"    json:"max_reconnect_delay"    validate:"required,timeout_duration"`

	// Connection errors are logged at most once per this interval.
	ErrorLogInterval time.Duration `mapstructure:"ERROR_LOG_INTERVAL" json:"error_log_interval" validate:"required,timeout_duration"`

	// Pending send_message acks expire after this long.
	AckTimeout time.Duration `mapstructure:"ACK_TIMEOUT" json:"ack_timeout" validate:"required,timeout_duration"`
}
