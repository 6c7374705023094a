package photo

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/StevenACZ/peso-tracker-backend/internal/errs"
	"github.com/StevenACZ/peso-tracker-backend/internal/services"
	"github.com/StevenACZ/peso-tracker-backend/internal/throttle"
)

// ServeSecurePhoto handles GET /photos/secure/:token. Pure orchestration:
// throttle admission, token verification, device check, ownership
// cross-validation, read, respond. Any failure short-circuits, and token or
// ownership failures feed the throttle's failure counter.
func (h *Handler) ServeSecurePhoto(c *gin.Context) {
	clientKey := throttle.ClientKey(c.Request)
	ip := throttle.RealIP(c.Request)
	userAgent := c.Request.UserAgent()

	if retryAfter, ok := h.throttle.Allow(clientKey); !ok {
		c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
		errorJSON(c, http.StatusTooManyRequests, "Too many requests. Try again later.")
		return
	}

	tokenStr := c.Param("token")
	claims, err := h.tokens.Verify(tokenStr)
	if err != nil {
		h.throttle.RecordFailure(clientKey)
		h.log.Warn("photo token rejected",
			zap.String("ip", ip),
			zap.String("user_agent", userAgent),
			zap.String("token", truncateToken(tokenStr)),
			zap.Error(err),
		)
		if errors.Is(err, errs.ErrTokenExpired) {
			errorJSON(c, http.StatusUnauthorized, "Token expired")
		} else {
			errorJSON(c, http.StatusBadRequest, "Invalid token")
		}
		return
	}

	// Defense in depth: a token minted for one client class is not honored
	// when a different class presents it.
	if claims.Device != "" {
		if device := c.GetHeader("X-Client-Device"); device != "" && device != claims.Device {
			h.throttle.RecordFailure(clientKey)
			h.log.Warn("device context mismatch",
				zap.String("ip", ip),
				zap.String("token_device", claims.Device),
				zap.String("request_device", device),
			)
			errorJSON(c, http.StatusBadRequest, "Invalid token")
			return
		}
	}

	reqCtx := services.RequestContext{IP: ip, UserAgent: userAgent}
	if err := h.owners.Validate(c.Request.Context(), claims.Path, claims.UserID, reqCtx); err != nil {
		h.throttle.RecordFailure(clientKey)
		switch {
		case errors.Is(err, errs.ErrAccessDenied):
			errorJSON(c, http.StatusForbidden, "Access denied")
		case errors.Is(err, errs.ErrNotFound):
			errorJSON(c, http.StatusNotFound, "Photo not found")
		case errors.Is(err, errs.ErrInvalidInput):
			errorJSON(c, http.StatusBadRequest, "Invalid photo path")
		default:
			h.log.Error("ownership validation failed", zap.Error(err))
			errorJSON(c, http.StatusInternalServerError, "Error serving photo")
		}
		return
	}

	data, err := h.blobs.Read(c.Request.Context(), claims.Path)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) || errors.Is(err, errs.ErrInvalidInput) {
			errorJSON(c, http.StatusNotFound, "Photo not found")
			return
		}
		h.log.Error("derivative read failed", zap.String("path", claims.Path), zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, "Error serving photo")
		return
	}

	// Short private cache: signed URLs expire, their responses must not be
	// shared or long-lived.
	c.Header("Cache-Control", fmt.Sprintf("private, max-age=%d", int(h.cfg.Signing.CacheMaxAge.Seconds())))
	c.Header("Content-Length", strconv.Itoa(len(data)))
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("X-Frame-Options", "DENY")
	c.Header("Referrer-Policy", "no-referrer")
	c.Header("Accept-Ranges", "bytes")
	c.Data(http.StatusOK, contentTypeByExt(path.Ext(claims.Path)), data)
}

func contentTypeByExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}

// truncateToken keeps log lines useful for abuse monitoring without writing
// whole bearer tokens to the logs.
func truncateToken(token string) string {
	if len(token) <= 16 {
		return token
	}
	return token[:16] + "..."
}
