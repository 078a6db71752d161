package blob

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheVisher/pawkit-sync/internal/common"
)

func TestMemProviderRoundTrip(t *testing.T) {
	p := NewMemProvider()
	ctx := context.Background()

	id, err := p.UploadFile(ctx, []byte("hello"), "note.txt", "attachments")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	data, err := p.DownloadFile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	files, err := p.ListFiles(ctx, "attachments")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "note.txt", files[0].Name)
	assert.Equal(t, int64(5), files[0].Size)

	require.NoError(t, p.DeleteFile(ctx, id))
	_, err = p.DownloadFile(ctx, id)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestMemProviderListScopesByPath(t *testing.T) {
	p := NewMemProvider()
	ctx := context.Background()

	_, err := p.UploadFile(ctx, []byte("a"), "a.txt", "attachments")
	require.NoError(t, err)
	_, err = p.UploadFile(ctx, []byte("b"), "b.txt", "thumbnails")
	require.NoError(t, err)

	files, err := p.ListFiles(ctx, "thumbnails")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "b.txt", files[0].Name)
}

func TestNewSelectsVariant(t *testing.T) {
	p, err := New(ProviderConfig{Kind: KindMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemProvider{}, p)

	p, err = New(ProviderConfig{Kind: KindS3, S3: &S3Config{Region: "us-east-1", Bucket: "pawkit"}})
	require.NoError(t, err)
	assert.IsType(t, &S3Provider{}, p)

	_, err = New(ProviderConfig{Kind: KindS3})
	assert.Error(t, err)

	_, err = New(ProviderConfig{Kind: "dropbox"})
	assert.Error(t, err)
}

func TestOpaqueConfigRoundTrips(t *testing.T) {
	raw := []byte(`{"kind":"opaque","opaque":{"futureKey":"futureValue"}}`)

	var cfg ProviderConfig
	require.NoError(t, json.Unmarshal(raw, &cfg))
	assert.Equal(t, KindOpaque, cfg.Kind)

	// an older binary must carry the unknown variant through unchanged
	out, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(out))

	_, err = New(cfg)
	assert.Error(t, err)
}
