package objstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

type GetObjectInput struct {
	Bucket string
	Key    string
}

type PutObjectInput struct {
	Bucket string
	Key    string
	Data   io.Reader
}

type SignedURLInput struct {
	Bucket string
	Key    string
}

// BlobLike is an object store. An empty Bucket in an input means the
// bucket the store was configured with.
type BlobLike interface {
	GetObject(ctx context.Context, in GetObjectInput) (io.ReadCloser, error)
	PutObject(ctx context.Context, in PutObjectInput) error
	GetSignedURL(ctx context.Context, in SignedURLInput) (string, error)
}

// ObjStorageManager is a thin wrapper around a BlobLike that pins the bucket
// objects are written to.
type ObjStorageManager struct {
	svc    BlobLike
	bucket string
}

func New(objstr BlobLike, bucket string) (*ObjStorageManager, error) {
	if objstr == nil {
		return nil, fmt.Errorf("objstore: no store configured")
	}
	return &ObjStorageManager{svc: objstr, bucket: bucket}, nil
}

func (m *ObjStorageManager) ReadAll(ctx context.Context, key string) ([]byte, error) {
	readCloser, err := m.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	defer readCloser.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(readCloser); err != nil {
		return nil, fmt.Errorf("objstore read error (%s): %w", key, err)
	}
	return buf.Bytes(), nil
}

// Read returns an io.ReadCloser that must be closed by the caller.
func (m *ObjStorageManager) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	result, err := m.svc.GetObject(ctx, GetObjectInput{Bucket: m.bucket, Key: key})
	if err != nil {
		return nil, fmt.Errorf("objstore GetObject error (%s): %w", key, err)
	}
	return result, nil
}

// Store reads data until io.EOF and stores it under key. It blocks until data
// has been fully read, so a writer on the other side of a pipe must run in
// its own goroutine.
func (m *ObjStorageManager) Store(ctx context.Context, key string, data io.Reader) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}
	return m.svc.PutObject(ctx, PutObjectInput{
		Bucket: m.bucket,
		Key:    key,
		Data:   data,
	})
}

func (m *ObjStorageManager) GetSignedURL(ctx context.Context, key string) (string, error) {
	r, err := m.svc.GetSignedURL(ctx, SignedURLInput{Bucket: m.bucket, Key: key})
	if err != nil {
		return "", fmt.Errorf("objstore GetSignedURL error (%s): %w", key, err)
	}
	return r, nil
}
