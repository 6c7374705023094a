// Package storage persists derivative images under paths that embed their
// ownership: {userID}/{weightID}/{timestamp}_{size}.{ext}. The path layout is
// load-bearing — the first segment is the cheap ownership hint checked before
// any database lookup.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/StevenACZ/peso-tracker-backend/internal/errs"
	"github.com/StevenACZ/peso-tracker-backend/internal/models"
)

// BlobStore is the contract for derivative persistence. Implementations exist
// for the local filesystem and for MinIO.
type BlobStore interface {
	// Write stores data and returns the relative path it was stored under.
	// stamp groups the three derivatives of one upload under one timestamp.
	Write(ctx context.Context, ownerID, weightID string, stamp int64, label models.SizeLabel, data []byte) (string, error)

	// Read returns the bytes at relPath, or errs.ErrNotFound.
	Read(ctx context.Context, relPath string) ([]byte, error)

	// DeleteAll removes every derivative for a weight record, best effort.
	// Individual deletion failures are logged, never propagated.
	DeleteAll(ctx context.Context, ownerID, weightID string)

	// DeleteOwner removes every derivative belonging to a user, best effort.
	DeleteOwner(ctx context.Context, ownerID string)
}

// NewStamp returns the timestamp component for a fresh derivative set.
func NewStamp() int64 { return time.Now().Unix() }

// BuildPath constructs the canonical relative path for one derivative.
func BuildPath(ownerID, weightID string, stamp int64, label models.SizeLabel, ext string) string {
	return fmt.Sprintf("%s/%s/%d_%s.%s", ownerID, weightID, stamp, label, ext)
}

// ValidatePath rejects anything that could escape the uploads root before a
// backend is touched. Mandatory on every externally supplied path.
func ValidatePath(relPath string) error {
	if relPath == "" {
		return fmt.Errorf("%w: empty path", errs.ErrInvalidInput)
	}
	if strings.HasPrefix(relPath, "/") || strings.Contains(relPath, "\\") {
		return fmt.Errorf("%w: absolute or backslash path", errs.ErrInvalidInput)
	}
	segments := strings.Split(relPath, "/")
	if len(segments) != 3 {
		return fmt.Errorf("%w: expected owner/record/file path", errs.ErrInvalidInput)
	}
	for _, seg := range segments {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: traversal segment in path", errs.ErrInvalidInput)
		}
	}
	return nil
}

// SplitPath returns the owner and weight-record segments of a validated path.
func SplitPath(relPath string) (ownerID, weightID string, err error) {
	if err := ValidatePath(relPath); err != nil {
		return "", "", err
	}
	segments := strings.Split(relPath, "/")
	return segments[0], segments[1], nil
}

// segmentOK guards single path components used to build prefixes.
func segmentOK(seg string) bool {
	return seg != "" && seg != "." && seg != ".." &&
		!strings.ContainsAny(seg, "/\\")
}
