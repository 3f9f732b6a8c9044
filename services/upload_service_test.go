package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remus-chat/remus-node/pkg"
)

func newUploadFixture(t *testing.T) (UploadService, *fakeUploadRepo, string) {
	t.Helper()
	dir := t.TempDir()
	repo := newFakeUploadRepo()
	svc, err := NewUploadService(filepath.Join(dir, "uploads"), filepath.Join(dir, "icons"), 1<<20, repo)
	require.NoError(t, err)
	return svc, repo, dir
}

func TestStoreWritesFileAndRow(t *testing.T) {
	svc, repo, dir := newUploadFixture(t)

	up, err := svc.Store(context.Background(), "u1", "c1", "photo.png", "image/png", 5, strings.NewReader("hello"))
	require.NoError(t, err)

	assert.Equal(t, "u1", up.UploaderID)
	assert.Equal(t, "c1", up.ChannelID, "upload is bound to its channel")
	assert.Equal(t, "photo.png", up.Filename)
	assert.Equal(t, int64(5), up.Size)
	assert.Equal(t, "/uploads/"+up.StoredName, up.URL)
	assert.Contains(t, repo.uploads, up.ID)

	data, err := os.ReadFile(filepath.Join(dir, "uploads", up.StoredName))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestStoreRejectsBlockedExtensions(t *testing.T) {
	svc, repo, _ := newUploadFixture(t)

	for _, name := range []string{"payload.exe", "script.sh", "lib.DLL", "run.Ps1"} {
		_, err := svc.Store(context.Background(), "u1", "c1", name, "application/octet-stream", 4, strings.NewReader("data"))
		assert.ErrorIs(t, err, pkg.ErrBadRequest, name)
	}
	assert.Empty(t, repo.uploads)
}

func TestStoreAllowsHTMLAndSVG(t *testing.T) {
	svc, _, _ := newUploadFixture(t)

	for _, name := range []string{"page.html", "logo.svg"} {
		_, err := svc.Store(context.Background(), "u1", "c1", name, "text/plain", 4, strings.NewReader("data"))
		assert.NoError(t, err, name)
	}
}

func TestStoreRejectsDeclaredOversize(t *testing.T) {
	svc, _, _ := newUploadFixture(t)

	_, err := svc.Store(context.Background(), "u1", "c1", "big.bin", "application/octet-stream", 2<<20, strings.NewReader("x"))
	assert.ErrorIs(t, err, pkg.ErrBadRequest)
}

func TestStoreCapsActualBytes(t *testing.T) {
	dir := t.TempDir()
	repo := newFakeUploadRepo()
	svc, err := NewUploadService(filepath.Join(dir, "uploads"), filepath.Join(dir, "icons"), 8, repo)
	require.NoError(t, err)

	// Declared size lies; the stream is longer than the cap.
	_, err = svc.Store(context.Background(), "u1", "c1", "liar.bin", "application/octet-stream", 4, strings.NewReader("0123456789"))
	assert.ErrorIs(t, err, pkg.ErrBadRequest)
	assert.Empty(t, repo.uploads)

	// Nothing left on disk after the reject.
	entries, err := os.ReadDir(filepath.Join(dir, "uploads"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStoreStripsPathComponents(t *testing.T) {
	svc, _, dir := newUploadFixture(t)

	up, err := svc.Store(context.Background(), "u1", "c1", "../../etc/passwd", "text/plain", 4, strings.NewReader("data"))
	require.NoError(t, err)
	assert.Equal(t, "passwd", up.Filename)

	up, err = svc.Store(context.Background(), "u1", "c1", `..\..\windows\evil.txt`, "text/plain", 4, strings.NewReader("data"))
	require.NoError(t, err)
	assert.Equal(t, "evil.txt", up.Filename)

	entries, err := os.ReadDir(filepath.Join(dir, "uploads"))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "files stay inside the uploads dir")
}

func TestSanitizeFilenameCapsLength(t *testing.T) {
	long := strings.Repeat("a", 300) + ".png"
	got := sanitizeFilename(long)
	assert.Len(t, []rune(got), 120)
	assert.True(t, strings.HasSuffix(got, ".png"), "extension survives truncation")

	assert.Equal(t, "", sanitizeFilename(".."))
	assert.Equal(t, "name.txt", sanitizeFilename("na\x00me\x1f.txt"))
}

func TestStoreRoleIcon(t *testing.T) {
	svc, _, dir := newUploadFixture(t)

	url, err := svc.StoreRoleIcon("role-1", "icon.png", 4, strings.NewReader("data"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/role-icons/role-1-"))
	assert.True(t, strings.HasSuffix(url, ".png"))

	stored := strings.TrimPrefix(url, "/role-icons/")
	_, err = os.Stat(filepath.Join(dir, "icons", stored))
	assert.NoError(t, err)
}

func TestStoreRoleIconRejectsNonImages(t *testing.T) {
	svc, _, _ := newUploadFixture(t)

	_, err := svc.StoreRoleIcon("role-1", "icon.pdf", 4, strings.NewReader("data"))
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	_, err = svc.StoreRoleIcon("role-1", "icon.png", maxIconSize+1, strings.NewReader("data"))
	assert.ErrorIs(t, err, pkg.ErrBadRequest)
}
