package localstate

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	envHome       = "EVENT_MEMORY_HOME" // override for tests and containers
	dirName       = ".event-memory"     // default under $HOME
	dbFilename    = "events.db"
	indexFilename = "events.idx"
)

// DataDir returns the directory where local state is stored (~/.event-memory).
// It creates the directory with 0700 permissions if it does not exist.
func DataDir() (string, error) {
	if custom := os.Getenv(envHome); custom != "" {
		if err := os.MkdirAll(custom, 0o700); err != nil {
			return "", err
		}
		return custom, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine user home: %w", err)
	}
	dir := filepath.Join(home, dirName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// DBPath returns the absolute path to the SQLite event log.
func DBPath() (string, error) {
	return inDataDir(dbFilename)
}

// IndexPath returns the absolute path to the vector index snapshot.
func IndexPath() (string, error) {
	return inDataDir(indexFilename)
}

func inDataDir(name string) (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
