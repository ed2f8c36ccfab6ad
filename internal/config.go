// Package internal holds the server configuration and the operator
// debug endpoints.
package internal

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

type Config struct {
	Host                 string        `env:"HOST,default=localhost"`
	Port                 int           `env:"PORT,default=8080" validate:"min=1,max=65535"`
	DebugPort            int           `env:"DEBUG_PORT,default=8081" validate:"min=0,max=65535"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true" validate:"required"`
	LogLevel             string        `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error"`
	BufferSize           int           `env:"BUFFER_SIZE,default=64" validate:"min=1"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=256" validate:"min=1"`
	ReplayLimit          int           `env:"REPLAY_LIMIT,default=10" validate:"min=0"`
	MaxMessageSize       int64         `env:"MAX_MESSAGE_SIZE,default=4096" validate:"min=1"`
	DefaultRoom          string        `env:"DEFAULT_ROOM,default=global-room" validate:"required"`
	AllowedOrigins       string        `env:"ALLOWED_ORIGINS"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=30s"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

func (c Config) Validate() error {
	return validator.New().Struct(c)
}

// Origins splits the comma-separated ALLOWED_ORIGINS value. An empty
// value means no cross-origin browser access.
func (c Config) Origins() []string {
	parts := strings.Split(c.AllowedOrigins, ",")
	parts = lo.Map(parts, func(part string, _ int) string {
		return strings.TrimSpace(part)
	})
	return lo.Filter(parts, func(part string, _ int) bool {
		return part != ""
	})
}
