package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/StevenACZ/peso-tracker-backend/internal/errs"
	"github.com/StevenACZ/peso-tracker-backend/internal/models"
)

// LocalStore keeps derivatives on the local filesystem under a fixed root.
type LocalStore struct {
	root string
	log  *zap.Logger
}

func NewLocalStore(root string, log *zap.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads root: %w", err)
	}
	return &LocalStore{root: root, log: log}, nil
}

func (s *LocalStore) Write(ctx context.Context, ownerID, weightID string, stamp int64, label models.SizeLabel, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	relPath := BuildPath(ownerID, weightID, stamp, label, "jpg")
	if err := ValidatePath(relPath); err != nil {
		return "", err
	}

	fullPath := filepath.Join(s.root, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("create derivative dir: %w", err)
	}

	// Write-then-rename so readers never observe a partial file.
	tmpPath := fullPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write derivative: %w", err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("publish derivative: %w", err)
	}
	return relPath, nil
}

func (s *LocalStore) Read(ctx context.Context, relPath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidatePath(relPath); err != nil {
		return nil, err
	}

	fullPath := filepath.Join(s.root, filepath.FromSlash(relPath))
	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("stat derivative: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, errs.ErrNotFound
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("read derivative: %w", err)
	}
	return data, nil
}

func (s *LocalStore) DeleteAll(ctx context.Context, ownerID, weightID string) {
	if !segmentOK(ownerID) || !segmentOK(weightID) {
		s.log.Warn("refusing purge with unsafe path segment",
			zap.String("owner_id", ownerID), zap.String("weight_id", weightID))
		return
	}

	dir := filepath.Join(s.root, ownerID, weightID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("purge: read dir failed", zap.String("dir", dir), zap.Error(err))
		}
		return
	}
	for _, entry := range entries {
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			s.log.Warn("purge: remove failed",
				zap.String("file", entry.Name()), zap.Error(err))
		}
	}
	// Drop the emptied record dir and, if now empty, the owner dir.
	_ = os.Remove(dir)
	_ = os.Remove(filepath.Join(s.root, ownerID))
}

func (s *LocalStore) DeleteOwner(ctx context.Context, ownerID string) {
	if !segmentOK(ownerID) {
		s.log.Warn("refusing owner purge with unsafe segment", zap.String("owner_id", ownerID))
		return
	}
	dir := filepath.Join(s.root, ownerID)
	if err := os.RemoveAll(dir); err != nil {
		s.log.Warn("owner purge failed", zap.String("dir", dir), zap.Error(err))
	}
}
