package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// Storage abstracts where archived artifacts live. The file implementation
// covers the normal local-run case; an S3 implementation is available behind
// the s3 build tag for runs whose results should outlive the host.
type Storage interface {
	Save(ctx context.Context, name string, data io.Reader) error
	Load(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// Archive persists JSON artifacts (benchmark reports, mainly) under
// caller-chosen names on a Storage backend.
type Archive struct {
	storage Storage
}

func New(storage Storage) *Archive {
	return &Archive{storage: storage}
}

// SaveJSON marshals v and stores it under name.
func (a *Archive) SaveJSON(ctx context.Context, name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal artifact %s: %w", name, err)
	}
	if err := a.storage.Save(ctx, name, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save artifact %s: %w", name, err)
	}
	return nil
}

// LoadJSON reads the artifact stored under name into out.
func (a *Archive) LoadJSON(ctx context.Context, name string, out interface{}) error {
	reader, err := a.storage.Load(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to load artifact %s: %w", name, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("failed to read artifact %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal artifact %s: %w", name, err)
	}
	return nil
}

// List returns artifact names sharing the prefix.
func (a *Archive) List(ctx context.Context, prefix string) ([]string, error) {
	return a.storage.List(ctx, prefix)
}

// Delete removes the named artifact.
func (a *Archive) Delete(ctx context.Context, name string) error {
	return a.storage.Delete(ctx, name)
}
