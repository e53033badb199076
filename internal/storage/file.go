package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	platformerrors "refract-server-go/internal/platform/errors"
)

// FileStorage persists blobs under a root directory. It serves both as a
// loader for local sources and as a result store. Content types ride in a
// sidecar .meta file next to the payload.
type FileStorage struct {
	root string
}

func NewFileStorage(root string) (*FileStorage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "storage.file",
			"resolving root", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "storage.file",
			"creating root", err)
	}
	return &FileStorage{root: abs}, nil
}

type fileMeta struct {
	ContentType string    `json:"content_type"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// resolve maps a key to a path inside root, refusing traversal escapes.
func (s *FileStorage) resolve(key string) (string, error) {
	cleaned := filepath.Clean("/" + key)
	full := filepath.Join(s.root, cleaned)
	if !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", platformerrors.Newf(platformerrors.KindStorage, "storage.file",
			"key %q escapes the storage root", key)
	}
	return full, nil
}

func (s *FileStorage) Load(ctx context.Context, uri string) (Blob, error) {
	return s.Get(ctx, uri)
}

func (s *FileStorage) Get(_ context.Context, key string) (Blob, error) {
	const op = "storage.file"

	full, err := s.resolve(key)
	if err != nil {
		return Blob{}, err
	}

	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return Blob{}, fmt.Errorf("%s %s: %w", op, key, ErrNotFound)
	}
	if err != nil {
		return Blob{}, platformerrors.Wrap(platformerrors.KindStorage, op,
			"reading blob", err)
	}

	blob := Blob{Data: data}
	if metaBytes, err := os.ReadFile(full + ".meta"); err == nil {
		var meta fileMeta
		if json.Unmarshal(metaBytes, &meta) == nil {
			if !meta.ExpiresAt.IsZero() && time.Now().After(meta.ExpiresAt) {
				return Blob{}, fmt.Errorf("%s %s expired: %w", op, key, ErrNotFound)
			}
			blob.ContentType = meta.ContentType
		}
	}
	return blob, nil
}

func (s *FileStorage) Put(_ context.Context, key string, blob Blob, ttl time.Duration) error {
	const op = "storage.file"

	full, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, op,
			"creating blob directory", err)
	}
	if err := os.WriteFile(full, blob.Data, 0o644); err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, op,
			"writing blob", err)
	}

	meta := fileMeta{ContentType: blob.ContentType}
	if ttl > 0 {
		meta.ExpiresAt = time.Now().Add(ttl)
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, op,
			"encoding blob metadata", err)
	}
	if err := os.WriteFile(full+".meta", metaBytes, 0o644); err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, op,
			"writing blob metadata", err)
	}
	return nil
}
