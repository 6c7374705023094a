package photo

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/StevenACZ/peso-tracker-backend/internal/api/middleware"
	"github.com/StevenACZ/peso-tracker-backend/internal/errs"
)

// DeletePhoto handles DELETE /api/photos/:id. Derivative purging is best
// effort — a file that fails to delete is logged and skipped, never blocks
// removing the record.
func (h *Handler) DeletePhoto(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		errorJSON(c, http.StatusUnauthorized, "unauthenticated")
		return
	}

	photo, err := h.photos.GetPhoto(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			errorJSON(c, http.StatusNotFound, "Photo not found")
			return
		}
		h.log.Error("photo lookup failed", zap.String("photo_id", c.Param("id")), zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, "Error deleting photo")
		return
	}

	if photo.UserID != userID {
		h.log.Warn("security: photo delete by non-owner",
			zap.String("photo_id", photo.ID),
			zap.String("owner", photo.UserID),
			zap.String("requester", userID),
		)
		errorJSON(c, http.StatusForbidden, "Access denied")
		return
	}

	h.blobs.DeleteAll(c.Request.Context(), photo.UserID, photo.WeightID)

	if err := h.photos.DeletePhoto(c.Request.Context(), photo.ID); err != nil && !errors.Is(err, errs.ErrNotFound) {
		h.log.Error("photo row delete failed", zap.String("photo_id", photo.ID), zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, "Error deleting photo")
		return
	}

	h.events.Publish("photos.deleted", gin.H{
		"photo_id":  photo.ID,
		"user_id":   photo.UserID,
		"weight_id": photo.WeightID,
	})

	c.JSON(http.StatusOK, gin.H{
		"message":  "Photo deleted successfully",
		"photo_id": photo.ID,
	})
}
