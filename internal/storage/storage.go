package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/avtotestprime/avtotest-service/internal/config"
)

// ErrUnsupportedType is returned for uploads that are not images
var ErrUnsupportedType = errors.New("unsupported image type")

// ImageStorage stores question images. A reference returned by Save is what
// the question row keeps; URL turns it back into something a browser can load.
type ImageStorage interface {
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
	Delete(ctx context.Context, ref string) error
	URL(ref string) string
}

var allowedExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".svg": true,
}

// imageExtension returns the lowercased extension of filename or ErrUnsupportedType
func imageExtension(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return "", ErrUnsupportedType
	}
	return ext, nil
}

// New picks Cloudinary when it is configured and local disk otherwise
func New(cfg *config.Config, logger *slog.Logger) (ImageStorage, error) {
	if cfg.CloudinaryURL != "" {
		logger.Info("Using Cloudinary image storage")
		return NewCloudinaryStorage(cfg.CloudinaryURL, "avtotest_questions")
	}

	logger.Info("Using local image storage", "root", cfg.MediaRoot)
	return NewLocalStorage(cfg.MediaRoot, cfg.MediaURL)
}
