package storage

import (
	"bytes"
	"io"
	"log/slog"
	"shop-chat/errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// 1x1 transparent PNG
var pngBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func TestDiskStore_Save_Detects_Real_Type(t *testing.T) {
	req := require.New(t)
	store, err := NewDiskStore(slog.Default(), t.TempDir(), 1024)
	req.NoError(err)

	// Given a PNG uploaded with a misleading name
	media, err := store.Save("invoice.pdf", bytes.NewReader(pngBytes))
	req.NoError(err)

	// Then the sniffed type wins
	req.Equal("image/png", media.MimeType)
	req.True(strings.HasSuffix(media.Ref, ".png"))
	req.Equal(int64(len(pngBytes)), media.Size)

	resolved, err := store.Resolve(media.Ref)
	req.NoError(err)
	req.Equal(media, resolved)

	f, _, err := store.Open(media.Ref)
	req.NoError(err)
	defer f.Close()
	content, err := io.ReadAll(f)
	req.NoError(err)
	req.Equal(pngBytes, content)
}

func TestDiskStore_Save_Rejects_Oversized_Upload(t *testing.T) {
	req := require.New(t)
	store, err := NewDiskStore(slog.Default(), t.TempDir(), 10)
	req.NoError(err)

	_, err = store.Save("big.txt", strings.NewReader(strings.Repeat("a", 11)))
	req.ErrorIs(err, errors.ErrValidation)
}

func TestDiskStore_Resolve_Rejects_Bad_References(t *testing.T) {
	req := require.New(t)
	store, err := NewDiskStore(slog.Default(), t.TempDir(), 10)
	req.NoError(err)

	_, err = store.Resolve("../etc/passwd")
	req.ErrorIs(err, errors.ErrValidation)

	_, err = store.Resolve("6f1c2b0e-7a55-4d7f-9a7e-2f1d6b1c0a11.png")
	req.ErrorIs(err, errors.ErrNotFound)
}
