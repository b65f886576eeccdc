package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
	UploadDir    string `mapstructure:"upload_dir" yaml:"upload_dir"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	// Room behavior.
	RoomName       string        `mapstructure:"room_name" yaml:"room_name"`
	SpeakTime      time.Duration `mapstructure:"speak_time" yaml:"speak_time"`
	ManualApproval bool          `mapstructure:"manual_approval" yaml:"manual_approval"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		DatabasePath:      "majlis.db",
		UploadDir:         "uploads",
		JWTSecret:         "",
		JWTIssuer:         "majlis-server",
		JWTAudience:       "majlis",
		RoomName:          "majlis",
		SpeakTime:         120 * time.Second,
		ManualApproval:    false,
	}
}
