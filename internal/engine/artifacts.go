package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrArtifactUnavailable wraps failures of the signed-document store itself.
var ErrArtifactUnavailable = errors.New("artifact store unavailable")

// ArtifactStore answers whether a signed sanction document exists.
type ArtifactStore interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// LocalArtifacts looks documents up below Root on the local filesystem.
type LocalArtifacts struct {
	Root string
}

func (l LocalArtifacts) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	root := l.Root
	if root == "" {
		root = "."
	}
	clean := filepath.Clean("/" + strings.TrimSpace(path))
	full := filepath.Join(root, clean)
	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrArtifactUnavailable, err)
	}
	return !info.IsDir(), nil
}
