package session

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.leadflow.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".leadflow")
}

// Dir returns the session-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "sessions", name)
}

// LockPath returns the lock file path for a session.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// TransportDBPath returns the transport credential store path.
func TransportDBPath(name string) string {
	return filepath.Join(Dir(name), "session.db")
}

// AppDBPath returns the app-owned leadflow.db path.
func AppDBPath(name string) string {
	return filepath.Join(Dir(name), "leadflow.db")
}

// QRPath returns the pairing QR code image path.
func QRPath(name string) string {
	return filepath.Join(Dir(name), "qr.png")
}

// LogDir returns the log directory for a session.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "leadflowd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the session directory tree with proper permissions.
func EnsureDir(name string) error {
	dirs := []string{
		Dir(name),
		LogDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
