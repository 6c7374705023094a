package models

import (
	"time"
)

// SizeLabel names one of the three derivative resolutions produced per photo.
type SizeLabel string

const (
	SizeThumbnail SizeLabel = "thumbnail"
	SizeMedium    SizeLabel = "medium"
	SizeFull      SizeLabel = "full"
)

// Photo is the stored record for a weight entry's progress photo. Each weight
// record owns at most one photo; replacing it purges the old derivatives first.
type Photo struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	WeightID      string    `json:"weight_id"`
	Notes         string    `json:"notes,omitempty"`
	ThumbnailPath string    `json:"thumbnail_path"`
	MediumPath    string    `json:"medium_path"`
	FullPath      string    `json:"full_path"`
	CreatedAt     time.Time `json:"created_at"`
}

// Paths returns the three derivative paths in a fixed order.
func (p Photo) Paths() []string {
	return []string{p.ThumbnailPath, p.MediumPath, p.FullPath}
}

// SignedPhotoURLs is the client-facing shape of a photo: time-limited URLs
// instead of raw storage paths.
type SignedPhotoURLs struct {
	ThumbnailURL string `json:"thumbnail_url"`
	MediumURL    string `json:"medium_url"`
	FullURL      string `json:"full_url"`
	ExpiresIn    int64  `json:"expires_in"`
}
