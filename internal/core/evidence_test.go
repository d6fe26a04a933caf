package core

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"ordercore/internal/blob"
	"ordercore/pkg/domain"
)

func TestAttachEvidencePhoto(t *testing.T) {
	ctx := context.Background()
	evidence := blob.NewMemory()
	f := Initialize(ctx, Options{Evidence: evidence})

	claim, err := f.CreateFraudClaim(ctx, domain.FraudClaim{BusinessID: "biz-1", OrderID: "ord-1"})
	require.NoError(t, err)

	key, err := f.AttachEvidencePhoto(ctx, claim.ID, "receipt.jpg", bytes.NewReader([]byte("jpegdata")), "image/jpeg")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(key, "claims/"+claim.ID+"/"))
	require.True(t, strings.HasSuffix(key, "-receipt.jpg"))

	got, err := f.GetFraudClaim(ctx, claim.ID)
	require.NoError(t, err)
	require.Equal(t, []string{key}, got.Evidence.PhotoKeys)

	info, rc, err := evidence.Get(ctx, key)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "jpegdata", string(data))
	require.Equal(t, "image/jpeg", info.ContentType)
	require.Equal(t, claim.ID, info.Metadata["claim_id"])
}

func TestAttachEvidencePhotoUnknownClaim(t *testing.T) {
	ctx := context.Background()
	f := Initialize(ctx, Options{Evidence: blob.NewMemory()})
	_, err := f.AttachEvidencePhoto(ctx, "absent", "p.jpg", bytes.NewReader(nil), "")
	require.True(t, domain.IsNotFound(err))
}

func TestAttachEvidencePhotoWithoutStore(t *testing.T) {
	f := Initialize(context.Background(), Options{})
	_, err := f.AttachEvidencePhoto(context.Background(), "c", "p.jpg", bytes.NewReader(nil), "")
	require.Error(t, err)
}
