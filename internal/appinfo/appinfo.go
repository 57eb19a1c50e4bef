// Package appinfo provides application identity constants.
// These are used across packages for consistent naming.
package appinfo

const (
	// AppName is the display name of the application.
	AppName = "SC:R Multi-Launcher"

	// DirName is the directory name used for storing application data.
	// Location: %LOCALAPPDATA%/scr-multilauncher/ (Windows) or ~/.config/scr-multilauncher/ (other)
	DirName = "scr-multilauncher"

	// MutexName is the Windows mutex name for single instance control.
	// "Local\" prefix scopes the mutex to the current user session.
	MutexName = "Local\\scr-multilauncher"

	// ConfigFileName is the configuration file name.
	ConfigFileName = "conf.toml"

	// DatabaseFileName is the SQLite history database file name.
	DatabaseFileName = "history.sqlite"

	// DiagnosticLogFileName is the rotating diagnostic log file name.
	DiagnosticLogFileName = "scr-multilauncher.log"

	// LogDirName is the default directory for saved daily log files.
	LogDirName = "logs"
)
