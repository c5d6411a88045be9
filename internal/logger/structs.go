package logger

// Console configures console output.
type Console struct {
	Enabled bool `mapstructure:"enabled"`
	// Pretty switches from JSON lines to zerolog's human readable console writer.
	Pretty bool `mapstructure:"pretty"`
}

// File configures rotating log files, split by level.
type File struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	InfoLog    string `mapstructure:"info"`
	ErrorLog   string `mapstructure:"error"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// Log implements the logger config.
type Log struct {
	Level        string `mapstructure:"level"` // trace, debug, info, warn, error
	ServiceName  string `mapstructure:"service_name"`
	ReportCaller bool   `mapstructure:"report_caller"`

	Console Console `mapstructure:"console"`
	File    File    `mapstructure:"file"`
}
