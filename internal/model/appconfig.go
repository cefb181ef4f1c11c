package model

// AppConfig holds application-wide preferences and default settings.
type AppConfig struct {
	// Default nesting settings applied when no settings file is given
	DefaultKerfWidth     float64 `json:"default_kerf_width" yaml:"default_kerf_width"`
	DefaultAllowRotation bool    `json:"default_allow_rotation" yaml:"default_allow_rotation"`

	// Solver preferences
	CacheDir      string `json:"cache_dir" yaml:"cache_dir"`           // empty = in-memory cache only
	CacheSize     int    `json:"cache_size" yaml:"cache_size"`         // in-memory entries
	StopTimeoutMS int    `json:"stop_timeout_ms" yaml:"stop_timeout_ms"` // worker join timeout after cancel

	// Application preferences
	LogLevel    string   `json:"log_level" yaml:"log_level"` // "trace", "debug", "info", "warn", "error"
	ListenAddr  string   `json:"listen_addr" yaml:"listen_addr"`
	RecentFiles []string `json:"recent_files" yaml:"recent_files"`
}

// DefaultAppConfig returns an AppConfig populated with sensible defaults
// matching the values from DefaultSettings().
func DefaultAppConfig() AppConfig {
	defaults := DefaultSettings()
	return AppConfig{
		DefaultKerfWidth:     defaults.KerfWidth,
		DefaultAllowRotation: defaults.AllowRotation,
		CacheDir:             "",
		CacheSize:            128,
		StopTimeoutMS:        2000,
		LogLevel:             "info",
		ListenAddr:           ":8080",
		RecentFiles:          []string{},
	}
}

// ApplyToSettings copies the default values from AppConfig into a Settings struct.
// This is used when no settings file is given so a solve inherits the user's saved defaults.
func (c AppConfig) ApplyToSettings(s *Settings) {
	s.KerfWidth = c.DefaultKerfWidth
	s.AllowRotation = c.DefaultAllowRotation
}
