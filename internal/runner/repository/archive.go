package repository

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/common/storage"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/project"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/submission"
	appErr "github.com/Developers-Secrets-Inc/python-secrets-sub001/pkg/errors"
)

const archiveContentType = "application/zstd"

// ArchiveRepository stores finished submission sources as a
// zstd-compressed tar in object storage.
type ArchiveRepository struct {
	store  storage.ObjectStorage
	bucket string
}

func NewArchiveRepository(store storage.ObjectStorage, bucket string) (*ArchiveRepository, error) {
	if store == nil {
		return nil, errors.New("object storage is required")
	}
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	return &ArchiveRepository{store: store, bucket: bucket}, nil
}

// Archive compresses and uploads a record's source files. Returns the
// object key the archive was stored under.
func (r *ArchiveRepository) Archive(ctx context.Context, rec *submission.Record) (string, error) {
	if rec == nil || rec.ID == "" {
		return "", appErr.ValidationError("record", "submission id is required")
	}
	payload, err := packFiles(rec.Files)
	if err != nil {
		return "", appErr.Wrap(err, appErr.ArchiveFailed)
	}
	key := archiveKey(rec)
	reader := io.NopCloser(bytes.NewReader(payload))
	if err := r.store.PutObject(ctx, r.bucket, key, reader, int64(len(payload)), archiveContentType); err != nil {
		return "", appErr.Wrap(err, appErr.ArchiveFailed)
	}
	return key, nil
}

// Restore downloads and unpacks an archived submission's files.
func (r *ArchiveRepository) Restore(ctx context.Context, key string) ([]project.File, error) {
	if key == "" {
		return nil, appErr.ValidationError("key", "required")
	}
	obj, err := r.store.GetObject(ctx, r.bucket, key)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.ArchiveFailed)
	}
	defer obj.Close()

	payload, err := io.ReadAll(obj)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.ArchiveFailed)
	}
	files, err := unpackFiles(payload)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.ArchiveFailed)
	}
	return files, nil
}

func archiveKey(rec *submission.Record) string {
	day := rec.FinishedAt
	if day.IsZero() {
		day = time.Now()
	}
	return fmt.Sprintf("submissions/%s/%s.tar.zst", day.Format("2006/01/02"), rec.ID)
}

func packFiles(files []project.File) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	tw := tar.NewWriter(zw)
	for _, f := range files {
		hdr := &tar.Header{
			Name: f.Path,
			Mode: 0644,
			Size: int64(len(f.Content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if _, err := tw.Write([]byte(f.Content)); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unpackFiles(payload []byte) ([]project.File, error) {
	zr, err := zstd.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	var files []project.File
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}
		files = append(files, project.File{Path: hdr.Name, Content: string(content)})
	}
	return files, nil
}
