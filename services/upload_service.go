package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/pkg"
	"github.com/remus-chat/remus-node/repository"
)

// blockedExtensions are executable file types the node refuses to store.
// The list is deliberately short; .html and .svg stay allowed.
var blockedExtensions = map[string]bool{
	".exe": true, ".bat": true, ".cmd": true, ".com": true,
	".scr": true, ".vbs": true, ".js": true, ".jar": true,
	".msi": true, ".dll": true, ".so": true, ".dylib": true,
	".sh": true, ".ps1": true,
}

// iconExtensions are the only file types accepted for role icons.
var iconExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
}

const maxIconSize = 2 << 20

// UploadService stores user files on disk and records them for later
// attachment dereferencing.
type UploadService interface {
	// Store writes src to the uploads directory and records the row,
	// bound to the channel it was uploaded for. size is the
	// caller-declared length; the write is capped at maxSize.
	Store(ctx context.Context, uploaderID, channelID, filename, mimeType string, size int64, src io.Reader) (*models.Upload, error)
	// StoreRoleIcon writes an image to the role icons directory and
	// returns its public URL. Icons are not tracked as uploads.
	StoreRoleIcon(roleID, filename string, size int64, src io.Reader) (string, error)
}

type uploadService struct {
	uploadsDir string
	iconsDir   string
	maxSize    int64
	uploadRepo repository.UploadRepository
}

// NewUploadService creates the upload service. Both directories are
// created on startup.
func NewUploadService(uploadsDir, iconsDir string, maxSize int64, uploadRepo repository.UploadRepository) (UploadService, error) {
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create uploads dir: %w", err)
	}
	if err := os.MkdirAll(iconsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create icons dir: %w", err)
	}
	return &uploadService{
		uploadsDir: uploadsDir,
		iconsDir:   iconsDir,
		maxSize:    maxSize,
		uploadRepo: uploadRepo,
	}, nil
}

func (s *uploadService) Store(ctx context.Context, uploaderID, channelID, filename, mimeType string, size int64, src io.Reader) (*models.Upload, error) {
	filename = sanitizeFilename(filename)
	if filename == "" {
		return nil, fmt.Errorf("%w: missing filename", pkg.ErrBadRequest)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if blockedExtensions[ext] {
		return nil, fmt.Errorf("%w: file type %s is not allowed", pkg.ErrBadRequest, ext)
	}
	if size > s.maxSize {
		return nil, fmt.Errorf("%w: file exceeds the %d MB limit", pkg.ErrBadRequest, s.maxSize>>20)
	}

	id := uuid.NewString()
	storedName := fmt.Sprintf("%d-%s-%s", time.Now().UnixMilli(), id, filename)
	path := filepath.Join(s.uploadsDir, storedName)

	written, err := writeCapped(path, src, s.maxSize)
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	upload := &models.Upload{
		ID:         id,
		UploaderID: uploaderID,
		ChannelID:  channelID,
		Filename:   filename,
		StoredName: storedName,
		URL:        "/uploads/" + storedName,
		Size:       written,
		MimeType:   mimeType,
	}
	if err := s.uploadRepo.Create(ctx, upload); err != nil {
		os.Remove(path)
		return nil, err
	}
	return upload, nil
}

func (s *uploadService) StoreRoleIcon(roleID, filename string, size int64, src io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(sanitizeFilename(filename)))
	if !iconExtensions[ext] {
		return "", fmt.Errorf("%w: role icons must be an image", pkg.ErrBadRequest)
	}
	if size > maxIconSize {
		return "", fmt.Errorf("%w: role icons are capped at 2 MB", pkg.ErrBadRequest)
	}

	storedName := roleID + "-" + uuid.NewString() + ext
	path := filepath.Join(s.iconsDir, storedName)
	if _, err := writeCapped(path, src, maxIconSize); err != nil {
		os.Remove(path)
		return "", err
	}
	return "/role-icons/" + storedName, nil
}

// writeCapped streams src to path, failing if it runs past max bytes.
func writeCapped(path string, src io.Reader, max int64) (int64, error) {
	dst, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	written, err := io.Copy(dst, io.LimitReader(src, max+1))
	if err != nil {
		return 0, fmt.Errorf("failed to write file: %w", err)
	}
	if written > max {
		return 0, fmt.Errorf("%w: file exceeds the size limit", pkg.ErrBadRequest)
	}
	return written, nil
}

// sanitizeFilename strips path components and control characters and
// caps the name at 120 runes, keeping the extension.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	name = strings.TrimSpace(b.String())
	if name == "." || name == ".." {
		return ""
	}

	runes := []rune(name)
	if len(runes) <= 120 {
		return name
	}
	ext := filepath.Ext(name)
	keep := 120 - len([]rune(ext))
	if keep < 1 {
		return string(runes[:120])
	}
	base := strings.TrimSuffix(name, ext)
	baseRunes := []rune(base)
	if len(baseRunes) > keep {
		baseRunes = baseRunes[:keep]
	}
	return string(baseRunes) + ext
}
