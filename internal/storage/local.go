package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const questionImageDir = "questions"

// LocalStorage keeps images under root/questions and serves them from baseURL
type LocalStorage struct {
	root    string
	baseURL string
}

func NewLocalStorage(root, baseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(filepath.Join(root, questionImageDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &LocalStorage{root: root, baseURL: baseURL}, nil
}

func (s *LocalStorage) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	ext, err := imageExtension(filename)
	if err != nil {
		return "", err
	}

	ref := path.Join(questionImageDir, uuid.New().String()+ext)
	f, err := os.Create(filepath.Join(s.root, filepath.FromSlash(ref)))
	if err != nil {
		return "", fmt.Errorf("failed to create image file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	return ref, nil
}

// Delete removes the file behind ref. A missing file is not an error.
func (s *LocalStorage) Delete(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}

	clean := path.Clean("/" + ref)
	if !strings.HasPrefix(clean, "/"+questionImageDir+"/") {
		return fmt.Errorf("refusing to delete %q outside media directory", ref)
	}

	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return nil
}

func (s *LocalStorage) URL(ref string) string {
	if ref == "" {
		return ""
	}
	return s.baseURL + ref
}

// Root is the directory served under the media URL
func (s *LocalStorage) Root() string {
	return s.root
}
