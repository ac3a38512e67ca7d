package broadcaster

import (
	"time"

	"github.com/dmitrymomot/broadcaster/core/server"
)

// Config is loaded from the environment with config.Load.
type Config struct {
	Server server.Config

	AppName  string `env:"APP_NAME" envDefault:"broadcaster"`
	Env      string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	BufferSize      int           `env:"BROADCAST_BUFFER_SIZE" envDefault:"100"`
	IntakeSize      int           `env:"BROADCAST_INTAKE_SIZE" envDefault:"100"`
	ShutdownTimeout time.Duration `env:"BROADCAST_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// HistoryCapacity bounds the history; 0 keeps every message.
	HistoryCapacity int `env:"HISTORY_CAPACITY" envDefault:"0"`

	SSEKeepAlive     time.Duration `env:"SSE_KEEPALIVE" envDefault:"15s"`
	MaxBodySize      int64         `env:"MAX_BODY_SIZE" envDefault:"1048576"`
	MetricsNamespace string        `env:"METRICS_NAMESPACE" envDefault:"broadcaster"`
}
