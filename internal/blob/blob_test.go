package blob

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func TestDiskStore_UploadAndDelete(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	store, err := NewDiskStore(dir, "http://cdn.local/", zap.NewNop())
	req.NoError(err)

	// When
	objs, err := store.Upload(context.Background(), []File{
		{Name: "pic.png", Data: pngHeader},
		{Name: "notes.txt", Data: []byte("hello there")},
	})

	// Then
	req.NoError(err)
	req.Len(objs, 2)
	req.True(strings.HasPrefix(objs[0].PublicID, "image_"))
	req.True(strings.HasSuffix(objs[0].PublicID, ".png"))
	req.True(strings.HasPrefix(objs[1].PublicID, "raw_"))
	req.Equal("http://cdn.local/uploads/"+objs[0].PublicID, objs[0].URL)

	data, err := os.ReadFile(filepath.Join(dir, objs[1].PublicID))
	req.NoError(err)
	req.Equal("hello there", string(data))

	store.Delete(context.Background(), []string{objs[0].PublicID, objs[1].PublicID, "../etc/passwd", "missing"})
	entries, err := os.ReadDir(dir)
	req.NoError(err)
	req.Empty(entries)
}

func TestReadAll_Limit(t *testing.T) {
	req := require.New(t)

	f, err := ReadAll("a", strings.NewReader("12345"), 5)
	req.NoError(err)
	req.Equal("12345", string(f.Data))

	_, err = ReadAll("a", strings.NewReader("123456"), 5)
	req.Error(err)
}
