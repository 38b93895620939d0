package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Filesystem stores objects as files under a base directory, one directory
// per bucket. It is meant for development and testing.
type Filesystem struct {
	baseDir string
	bucket  string
}

type FilesystemConfig struct {
	BaseDirectory string `json:"baseDir"`
	Bucket        string `json:"bucket,omitempty"`
}

func NewFilesystem(cfg FilesystemConfig) (*Filesystem, error) {
	if cfg.BaseDirectory == "" {
		return nil, errors.New("base directory is required")
	}

	if err := os.MkdirAll(cfg.BaseDirectory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	abs, err := filepath.Abs(cfg.BaseDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}
	return &Filesystem{baseDir: abs, bucket: cfg.Bucket}, nil
}

// getPath constructs the full filesystem path for a bucket/key combination,
// refusing keys that escape the base directory.
func (fs *Filesystem) getPath(bucket, key string) (string, error) {
	if bucket == "" {
		bucket = fs.bucket
	}
	path := filepath.Join(fs.baseDir, bucket, key)
	if path != fs.baseDir && !strings.HasPrefix(path, fs.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("key escapes base directory: %s", key)
	}
	return path, nil
}

func (fs *Filesystem) GetObject(_ context.Context, in GetObjectInput) (io.ReadCloser, error) {
	path, err := fs.getPath(in.Bucket, in.Key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object not found: %w", err)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

func (fs *Filesystem) PutObject(_ context.Context, in PutObjectInput) error {
	path, err := fs.getPath(in.Bucket, in.Key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory structure: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, in.Data); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}
	return file.Close()
}

// GetSignedURL returns a file:// URL; local files need no signature.
func (fs *Filesystem) GetSignedURL(_ context.Context, in SignedURLInput) (string, error) {
	path, err := fs.getPath(in.Bucket, in.Key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file does not exist: %w", err)
		}
		return "", fmt.Errorf("failed to check file: %w", err)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String(), nil
}
