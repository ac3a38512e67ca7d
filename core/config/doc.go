// Package config loads typed configuration from environment variables.
//
// Struct fields are mapped with caarlos0/env tags. A .env file in the working
// directory is read once on first use; variables already present in the process
// environment win. Each configuration type is parsed once and cached.
//
//	type Config struct {
//		BufferSize int           `env:"BROADCAST_BUFFER_SIZE" envDefault:"100"`
//		Timeout    time.Duration `env:"BROADCAST_SHUTDOWN_TIMEOUT" envDefault:"30s"`
//	}
//
//	var cfg Config
//	config.MustLoad(&cfg)
//
// Reset clears the cache so tests can load the same type under a different environment.
package config
