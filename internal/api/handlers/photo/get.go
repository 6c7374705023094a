package photo

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/StevenACZ/peso-tracker-backend/internal/api/middleware"
	"github.com/StevenACZ/peso-tracker-backend/internal/errs"
)

// GetPhoto handles GET /api/photos/:id, returning metadata plus fresh signed
// URLs. Raw storage paths never leave the service.
func (h *Handler) GetPhoto(c *gin.Context) {
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
		errorJSON(c, http.StatusInternalServerError, "Error fetching photo")
		return
	}

	if photo.UserID != userID {
		h.log.Warn("security: photo fetch by non-owner",
			zap.String("photo_id", photo.ID),
			zap.String("owner", photo.UserID),
			zap.String("requester", userID),
		)
		errorJSON(c, http.StatusForbidden, "Access denied")
		return
	}

	urls, err := h.urls.BuildPhotoURLs(photo, c.GetHeader("X-Client-Device"))
	if err != nil {
		h.log.Error("signed url build failed", zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, "Error signing photo URLs")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":         photo.ID,
		"weight_id":  photo.WeightID,
		"notes":      photo.Notes,
		"created_at": photo.CreatedAt,
		"urls":       urls,
	})
}
