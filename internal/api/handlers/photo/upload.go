package photo

import (
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/StevenACZ/peso-tracker-backend/internal/api/middleware"
	"github.com/StevenACZ/peso-tracker-backend/internal/errs"
	"github.com/StevenACZ/peso-tracker-backend/internal/models"
	"github.com/StevenACZ/peso-tracker-backend/internal/storage"
)

// UploadPhoto handles POST /api/photos. The caller must own the weight record
// the photo is attached to. Derivative persistence is all-or-none: a failure
// while writing any size purges whatever was already written.
func (h *Handler) UploadPhoto(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		errorJSON(c, http.StatusUnauthorized, "unauthenticated")
		return
	}

	weightID := c.PostForm("weightId")
	if weightID == "" {
		errorJSON(c, http.StatusBadRequest, "weightId is required")
		return
	}
	notes := c.PostForm("notes")

	fileHeader, err := c.FormFile("photo")
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "no photo provided")
		return
	}
	if fileHeader.Size > h.cfg.Uploads.MaxUploadBytes {
		errorJSON(c, http.StatusBadRequest, "photo too large")
		return
	}

	// The weight record must exist and belong to the uploader before anything
	// is processed or stored.
	owner, err := h.photos.FindWeightOwner(c.Request.Context(), weightID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			errorJSON(c, http.StatusNotFound, "Weight record not found")
			return
		}
		h.log.Error("weight owner lookup failed", zap.String("weight_id", weightID), zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, "Error uploading photo")
		return
	}
	if owner != userID {
		h.log.Warn("security: upload to foreign weight record",
			zap.String("weight_id", weightID),
			zap.String("owner", owner),
			zap.String("uploader", userID),
		)
		errorJSON(c, http.StatusForbidden, "Access denied")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "failed to open uploaded photo")
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, h.cfg.Uploads.MaxUploadBytes+1))
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "failed to read uploaded photo")
		return
	}
	if int64(len(raw)) > h.cfg.Uploads.MaxUploadBytes {
		errorJSON(c, http.StatusBadRequest, "photo too large")
		return
	}

	if err := h.scanner.ScanBytes(raw); err != nil {
		h.log.Warn("upload failed virus scan", zap.String("user_id", userID), zap.Error(err))
		errorJSON(c, http.StatusBadRequest, "photo rejected by virus scan")
		return
	}

	derivs, err := h.pipeline.ProduceDerivatives(
		c.Request.Context(), raw, fileHeader.Header.Get("Content-Type"), h.cfg.Uploads.MaxUploadBytes)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidInput) || errors.Is(err, errs.ErrTooLarge) {
			errorJSON(c, http.StatusBadRequest, "invalid photo upload")
			return
		}
		h.log.Error("derivative pipeline failed", zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, "Error processing photo")
		return
	}

	// One photo per weight record: purge the previous derivatives before the
	// replacement set is written. A failed lookup is logged but does not stop
	// the upload; the row upsert keeps metadata consistent either way.
	old, err := h.photos.GetPhotoByWeightID(c.Request.Context(), weightID)
	switch {
	case err == nil:
		h.blobs.DeleteAll(c.Request.Context(), old.UserID, old.WeightID)
	case !errors.Is(err, errs.ErrNotFound):
		h.log.Error("previous photo lookup failed",
			zap.String("weight_id", weightID), zap.Error(err))
	}

	stamp := storage.NewStamp()
	labels := [3]models.SizeLabel{models.SizeThumbnail, models.SizeMedium, models.SizeFull}

	var (
		wg        sync.WaitGroup
		paths     [3]string
		writeErrs [3]error
	)
	for i, label := range labels {
		wg.Add(1)
		go func(i int, label models.SizeLabel) {
			defer wg.Done()
			paths[i], writeErrs[i] = h.blobs.Write(
				c.Request.Context(), userID, weightID, stamp, label, derivs.ForLabel(label))
		}(i, label)
	}
	wg.Wait()

	for _, werr := range writeErrs {
		if werr != nil {
			h.blobs.DeleteAll(c.Request.Context(), userID, weightID)
			h.log.Error("derivative write failed, purged partial set",
				zap.String("weight_id", weightID), zap.Error(werr))
			errorJSON(c, http.StatusInternalServerError, "Error storing photo")
			return
		}
	}

	photo := models.Photo{
		ID:            uuid.New().String(),
		UserID:        userID,
		WeightID:      weightID,
		Notes:         notes,
		ThumbnailPath: paths[0],
		MediumPath:    paths[1],
		FullPath:      paths[2],
		CreatedAt:     time.Now(),
	}
	if err := h.photos.SavePhoto(c.Request.Context(), photo); err != nil {
		h.blobs.DeleteAll(c.Request.Context(), userID, weightID)
		h.log.Error("photo save failed", zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, "Error saving photo")
		return
	}

	h.events.Publish("photos.uploaded", gin.H{
		"photo_id":  photo.ID,
		"user_id":   photo.UserID,
		"weight_id": photo.WeightID,
		"created":   photo.CreatedAt.UTC().Format(time.RFC3339),
	})

	urls, err := h.urls.BuildPhotoURLs(photo, c.GetHeader("X-Client-Device"))
	if err != nil {
		h.log.Error("signed url build failed", zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, "Error signing photo URLs")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":         photo.ID,
		"weight_id":  photo.WeightID,
		"notes":      photo.Notes,
		"created_at": photo.CreatedAt,
		"urls":       urls,
	})
}
