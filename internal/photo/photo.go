// Package photo stores recipe images. The reference a store returns is what
// a Recipe keeps in its Photo field.
package photo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
)

var (
	ErrInvalidKey         = errors.New("invalid photo key")
	ErrUnsupportedContent = errors.New("unsupported photo content type")
)

// Store keeps photo blobs by key
type Store interface {
	// Put writes the photo under key, replacing any previous one
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	// Delete removes the photo; a missing photo is not an error
	Delete(ctx context.Context, key string) error
}

// Extension returns the file extension for an image content type
func Extension(contentType string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedContent, contentType)
	}
	switch mediaType {
	case "image/jpeg", "image/jpg":
		return ".jpg", nil
	case "image/png":
		return ".png", nil
	case "image/webp":
		return ".webp", nil
	case "image/gif":
		return ".gif", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedContent, contentType)
}

// Key builds the object key of a recipe photo
func Key(user, recipeID, contentType string) (string, error) {
	ext, err := Extension(contentType)
	if err != nil {
		return "", err
	}
	if user == "" || recipeID == "" {
		return "", fmt.Errorf("%w: user and recipe id required", ErrInvalidKey)
	}
	return path.Join("users", user, "recipes", recipeID+ext), nil
}

// sanitizeKey rejects keys that would escape the store root
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return path.Clean(key), nil
}
