// Package nats subscribes to lifecycle events from the main CRUD backend so
// photo rows and derivative files never outlive the user or weight record
// that owns them.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/StevenACZ/peso-tracker-backend/internal/errs"
	"github.com/StevenACZ/peso-tracker-backend/internal/services"
	"github.com/StevenACZ/peso-tracker-backend/internal/storage"
)

type UserDeletedEvent struct {
	UserID string `json:"user_id"`
}

type WeightDeletedEvent struct {
	WeightID string `json:"weight_id"`
	UserID   string `json:"user_id"`
}

// Cleanup purges photo state in response to deletion events.
type Cleanup struct {
	photos *services.PostgresStore
	blobs  storage.BlobStore
	log    *zap.Logger
}

func NewCleanup(photos *services.PostgresStore, blobs storage.BlobStore, log *zap.Logger) *Cleanup {
	return &Cleanup{photos: photos, blobs: blobs, log: log}
}

// Subscribe registers all event handlers on the connection.
func (c *Cleanup) Subscribe(nc *nats.Conn) error {
	if _, err := nc.Subscribe("users.deleted", c.handleUserDeleted); err != nil {
		return err
	}
	if _, err := nc.Subscribe("weights.deleted", c.handleWeightDeleted); err != nil {
		return err
	}
	return nil
}

func (c *Cleanup) handleUserDeleted(msg *nats.Msg) {
	var event UserDeletedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil || event.UserID == "" {
		c.log.Warn("users.deleted: invalid payload", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	photos, err := c.photos.DeletePhotosForUser(ctx, event.UserID)
	if err != nil {
		c.log.Error("users.deleted: row cleanup failed",
			zap.String("user_id", event.UserID), zap.Error(err))
	}
	c.blobs.DeleteOwner(ctx, event.UserID)

	c.log.Info("cleaned up deleted user",
		zap.String("user_id", event.UserID),
		zap.Int("photos", len(photos)))
}

func (c *Cleanup) handleWeightDeleted(msg *nats.Msg) {
	var event WeightDeletedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil || event.WeightID == "" {
		c.log.Warn("weights.deleted: invalid payload", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	photo, err := c.photos.GetPhotoByWeightID(ctx, event.WeightID)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			c.log.Error("weights.deleted: lookup failed",
				zap.String("weight_id", event.WeightID), zap.Error(err))
		}
		return
	}

	c.blobs.DeleteAll(ctx, photo.UserID, photo.WeightID)
	if err := c.photos.DeletePhoto(ctx, photo.ID); err != nil && !errors.Is(err, errs.ErrNotFound) {
		c.log.Error("weights.deleted: row delete failed",
			zap.String("photo_id", photo.ID), zap.Error(err))
	}

	c.log.Info("cleaned up photo for deleted weight record",
		zap.String("weight_id", event.WeightID),
		zap.String("photo_id", photo.ID))
}
