// Package storage keeps uploaded media on local disk.
// Messages only carry the reference returned by Save, never the bytes.
package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"shop-chat/domain"
	"shop-chat/errors"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var refPattern = regexp.MustCompile(`^[0-9a-f-]{36}(\.[a-z0-9]+)?$`)

type DiskStore struct {
	log     *slog.Logger
	root    string
	maxSize int64
}

type mediaMeta struct {
	Ref      string `json:"ref"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

func NewDiskStore(log *slog.Logger, root string, maxSize int64) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &DiskStore{log: log, root: root, maxSize: maxSize}, nil
}

// Save copies the upload to disk, sniffs its real MIME type and returns its reference.
// Uploads larger than maxSize are rejected and nothing is kept.
func (d *DiskStore) Save(name string, r io.Reader) (domain.Media, error) {
	tmp, err := os.CreateTemp(d.root, "upload-*")
	if err != nil {
		return domain.Media{}, fmt.Errorf("%w: create temp file: %v", errors.ErrInternal, err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	size, err := io.Copy(tmp, io.LimitReader(r, d.maxSize+1))
	closeErr := tmp.Close()
	if err != nil {
		return domain.Media{}, fmt.Errorf("%w: write upload: %v", errors.ErrInternal, err)
	}
	if closeErr != nil {
		return domain.Media{}, fmt.Errorf("%w: write upload: %v", errors.ErrInternal, closeErr)
	}
	if size == 0 {
		return domain.Media{}, fmt.Errorf("%w: empty upload", errors.ErrValidation)
	}
	if size > d.maxSize {
		return domain.Media{}, fmt.Errorf("%w: upload exceeds %d bytes", errors.ErrValidation, d.maxSize)
	}

	mtype, err := mimetype.DetectFile(tmpPath)
	if err != nil {
		return domain.Media{}, fmt.Errorf("%w: detect mime type: %v", errors.ErrInternal, err)
	}

	media := domain.Media{
		Ref:      uuid.NewString() + mtype.Extension(),
		Name:     filepath.Base(name),
		MimeType: mtype.String(),
		Size:     size,
	}
	if err := os.Rename(tmpPath, d.path(media.Ref)); err != nil {
		return domain.Media{}, fmt.Errorf("%w: move upload: %v", errors.ErrInternal, err)
	}
	meta, err := json.Marshal(mediaMeta(media))
	if err != nil {
		return domain.Media{}, fmt.Errorf("%w: marshal media: %v", errors.ErrInternal, err)
	}
	if err := os.WriteFile(d.metaPath(media.Ref), meta, 0o644); err != nil {
		return domain.Media{}, fmt.Errorf("%w: write media meta: %v", errors.ErrInternal, err)
	}
	d.log.Debug("Media stored", "ref", media.Ref, "mime_type", media.MimeType, "size", media.Size)
	return media, nil
}

func (d *DiskStore) Resolve(ref string) (domain.Media, error) {
	if !refPattern.MatchString(ref) {
		return domain.Media{}, fmt.Errorf("%w: malformed media reference", errors.ErrValidation)
	}
	data, err := os.ReadFile(d.metaPath(ref))
	if os.IsNotExist(err) {
		return domain.Media{}, errors.ErrMediaNotFound
	}
	if err != nil {
		return domain.Media{}, fmt.Errorf("%w: read media meta: %v", errors.ErrInternal, err)
	}
	var meta mediaMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return domain.Media{}, fmt.Errorf("%w: decode media meta: %v", errors.ErrInternal, err)
	}
	return domain.Media(meta), nil
}

// Open returns the stored bytes of a media. The caller closes the file.
func (d *DiskStore) Open(ref string) (*os.File, domain.Media, error) {
	media, err := d.Resolve(ref)
	if err != nil {
		return nil, domain.Media{}, err
	}
	f, err := os.Open(d.path(ref))
	if err != nil {
		return nil, domain.Media{}, fmt.Errorf("%w: open media: %v", errors.ErrInternal, err)
	}
	return f, media, nil
}

func (d *DiskStore) path(ref string) string {
	return filepath.Join(d.root, ref)
}

func (d *DiskStore) metaPath(ref string) string {
	return filepath.Join(d.root, ref+".json")
}
