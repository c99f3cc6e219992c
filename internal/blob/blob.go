// Package blob stores uploaded attachments and avatars.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// File is an upload held in memory.
type File struct {
	Name string
	Data []byte
}

// Object is a stored file.
type Object struct {
	PublicID string `json:"public_id"`
	URL      string `json:"url"`
}

type Store interface {
	Upload(ctx context.Context, files []File) ([]Object, error)
	// Delete is best effort; failures are logged.
	Delete(ctx context.Context, publicIDs []string)
}

// DiskStore keeps files under a directory served at baseURL/uploads.
type DiskStore struct {
	dir     string
	baseURL string
	logger  *zap.Logger
}

func NewDiskStore(dir, baseURL string, logger *zap.Logger) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), logger: logger.Named("blob")}, nil
}

func (s *DiskStore) Dir() string { return s.dir }

// Upload writes every file or none. The public id keeps the resource type
// prefix (image, video, raw) used to pick a viewer on the client.
func (s *DiskStore) Upload(ctx context.Context, files []File) ([]Object, error) {
	out := make([]Object, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			s.Delete(context.Background(), publicIDs(out))
			return nil, err
		}
		mtype := mimetype.Detect(f.Data)
		publicID := resourceType(mtype) + "_" + uuid.NewString() + mtype.Extension()
		if err := os.WriteFile(filepath.Join(s.dir, publicID), f.Data, 0o644); err != nil {
			s.Delete(context.Background(), publicIDs(out))
			return nil, fmt.Errorf("write %s: %w", f.Name, err)
		}
		out = append(out, Object{PublicID: publicID, URL: s.baseURL + "/uploads/" + publicID})
	}
	return out, nil
}

func (s *DiskStore) Delete(_ context.Context, ids []string) {
	for _, id := range ids {
		if id == "" || filepath.Base(id) != id {
			s.logger.Warn("skip suspicious blob id", zap.String("public_id", id))
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, id)); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("delete blob", zap.String("public_id", id), zap.Error(err))
		}
	}
}

// ReadAll reads at most limit bytes from r.
func ReadAll(name string, r io.Reader, limit int64) (File, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return File{}, fmt.Errorf("read %s: %w", name, err)
	}
	if int64(len(data)) > limit {
		return File{}, fmt.Errorf("%s exceeds %d bytes", name, limit)
	}
	return File{Name: name, Data: data}, nil
}

func resourceType(m *mimetype.MIME) string {
	for ; m != nil; m = m.Parent() {
		switch {
		case strings.HasPrefix(m.String(), "image/"):
			return "image"
		case strings.HasPrefix(m.String(), "video/"), strings.HasPrefix(m.String(), "audio/"):
			return "video"
		}
	}
	return "raw"
}

func publicIDs(objs []Object) []string {
	ids := make([]string, len(objs))
	for i, o := range objs {
		ids[i] = o.PublicID
	}
	return ids
}
