package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultRootDir returns the root storage directory for all Context Fabric
// state ($HOME/.context-fabric), honoring the CONTEXT_FABRIC_DIR override
// from spec §6.
func DefaultRootDir() string {
	if dir := os.Getenv("CONTEXT_FABRIC_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".context-fabric")
	}
	return filepath.Join(home, ".context-fabric")
}

// DefaultLogDir returns the default log directory.
func DefaultLogDir() string {
	return filepath.Join(DefaultRootDir(), "logs")
}

// DefaultLogPath returns the default server log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "fabric.log")
}

// EnsureLogDir creates the log directory if it doesn't exist.
func EnsureLogDir() error {
	return os.MkdirAll(DefaultLogDir(), 0o755)
}

// FindLogFile locates the log file for viewing, preferring an explicit path.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("log file not found: %s", explicit)
	}

	path := DefaultLogPath()
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("no log file found; expected at: %s", path)
}
