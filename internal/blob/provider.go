// Package blob stores file attachments in a configured cloud backend.
package blob

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// FileInfo describes one stored object.
type FileInfo struct {
	CloudID  string    `json:"cloudId"`
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Provider is a storage backend for file attachments. CloudID values are
// provider-scoped opaque keys.
type Provider interface {
	UploadFile(ctx context.Context, data []byte, name, path string) (string, error)
	DownloadFile(ctx context.Context, cloudID string) ([]byte, error)
	DeleteFile(ctx context.Context, cloudID string) error
	ListFiles(ctx context.Context, path string) ([]FileInfo, error)
}

// ProviderKind selects a backend implementation.
type ProviderKind string

const (
	KindS3     ProviderKind = "s3"
	KindMemory ProviderKind = "memory"
	KindOpaque ProviderKind = "opaque"
)

// ProviderConfig is a tagged union: exactly the variant matching Kind is
// set. Unknown provider kinds round-trip through Opaque so a newer config
// file survives an older binary.
type ProviderConfig struct {
	Kind   ProviderKind    `json:"kind"`
	S3     *S3Config       `json:"s3,omitempty"`
	Opaque json.RawMessage `json:"opaque,omitempty"`
}

// S3Config holds S3-compatible backend settings. BaseEndpoint is set for
// MinIO and other non-AWS deployments.
type S3Config struct {
	Region       string `json:"region"`
	Bucket       string `json:"bucket"`
	AccessKey    string `json:"accessKey"`
	SecretKey    string `json:"secretKey"`
	BaseEndpoint string `json:"baseEndpoint,omitempty"`
}

// New builds the provider the config names.
func New(cfg ProviderConfig) (Provider, error) {
	switch cfg.Kind {
	case KindS3:
		if cfg.S3 == nil {
			return nil, fmt.Errorf("s3 provider selected but not configured")
		}
		return NewS3Provider(*cfg.S3), nil
	case KindMemory:
		return NewMemProvider(), nil
	case KindOpaque:
		return nil, fmt.Errorf("provider config written by a newer version, cannot instantiate")
	default:
		return nil, fmt.Errorf("unknown blob provider %q", cfg.Kind)
	}
}
