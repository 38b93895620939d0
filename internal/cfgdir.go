package internal

import (
	"os"
	"path/filepath"
)

// ConfigDir is where wtmpd keeps its state, such as read offsets.
func ConfigDir() string {
	cfg := filepath.Join(os.TempDir(), "wtmpd")
	if dir := os.Getenv("WTMPD_STATE_DIR"); dir != "" {
		cfg = dir
	}
	// check if the directory exists
	_, err := os.Stat(cfg)
	if os.IsNotExist(err) {
		// create the directory, let the error bubble up
		// where this directory is used if it fails.
		_ = os.MkdirAll(cfg, 0744)
	}
	return cfg
}
