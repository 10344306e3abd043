package payment

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage defines the interface for the receipt image archive
type Storage interface {
	// Save stores a file under a relative path and returns that path
	Save(path string, data []byte) (string, error)

	// Get retrieves a file by its relative path
	Get(path string) ([]byte, error)

	// Delete removes a file
	Delete(path string) error
}

// LocalStorage keeps receipt images on the local filesystem
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new LocalStorage instance
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// resolve maps a relative archive path onto the filesystem, refusing paths that escape the base
func (l *LocalStorage) resolve(path string) (string, error) {
	path = filepath.Clean(filepath.FromSlash(path))
	if !filepath.IsLocal(path) {
		return "", fmt.Errorf("invalid storage path: %s", path)
	}
	return filepath.Join(l.basePath, path), nil
}

// Save writes a file, creating intermediate directories such as 2025/05/16
func (l *LocalStorage) Save(path string, data []byte) (string, error) {
	fullPath, err := l.resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return path, nil
}

// Get retrieves a file from local storage
func (l *LocalStorage) Get(path string) ([]byte, error) {
	fullPath, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes a file from local storage
func (l *LocalStorage) Delete(path string) error {
	fullPath, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}
