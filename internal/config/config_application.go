package config

import "log/slog"

// Mode represents the application running mode
type Mode string

const (
	ModeProduction  Mode = "production"
	ModeDevelopment Mode = "development"
)

// IsDevelopment returns true if the mode is development
func (m Mode) IsDevelopment() bool {
	return m == ModeDevelopment
}

// IsProduction returns true if the mode is production
func (m Mode) IsProduction() bool {
	return m == ModeProduction
}

// ApplicationConfig holds application-level configuration
type ApplicationConfig struct {
	Mode     Mode   `env:"MODE" envDefault:"production"`
	LogLevel string `env:"LOG_LEVEL"`
}

// Level returns the configured log level. Development mode defaults to
// debug, production to info.
func (c *ApplicationConfig) Level() slog.Level {
	var level slog.Level
	if c.LogLevel != "" && level.UnmarshalText([]byte(c.LogLevel)) == nil {
		return level
	}
	if c.Mode.IsDevelopment() {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
