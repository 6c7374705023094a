// Package photo implements the photo endpoints: authenticated upload, fetch
// and delete, plus the token-gated secure delivery endpoint.
package photo

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/StevenACZ/peso-tracker-backend/internal/api/handlers/util"
	"github.com/StevenACZ/peso-tracker-backend/internal/configuration"
	"github.com/StevenACZ/peso-tracker-backend/internal/imaging"
	"github.com/StevenACZ/peso-tracker-backend/internal/models"
	"github.com/StevenACZ/peso-tracker-backend/internal/services"
	"github.com/StevenACZ/peso-tracker-backend/internal/storage"
	"github.com/StevenACZ/peso-tracker-backend/internal/throttle"
	"github.com/StevenACZ/peso-tracker-backend/internal/token"
)

// PhotoRepo is the slice of the data layer the handlers use.
type PhotoRepo interface {
	services.WeightOwnerFinder
	SavePhoto(ctx context.Context, photo models.Photo) error
	GetPhoto(ctx context.Context, photoID string) (models.Photo, error)
	GetPhotoByWeightID(ctx context.Context, weightID string) (models.Photo, error)
	DeletePhoto(ctx context.Context, photoID string) error
}

// EventSink decouples handlers from the NATS publisher.
type EventSink interface {
	Publish(subject string, payload interface{})
}

// Handler bundles the collaborators of the photo endpoints. All dependencies
// are passed in at construction; there is no package-level state.
type Handler struct {
	cfg      *configuration.Config
	log      *zap.Logger
	pipeline *imaging.Pipeline
	blobs    storage.BlobStore
	photos   PhotoRepo
	owners   *services.OwnershipValidator
	tokens   *token.Codec
	throttle *throttle.PhotoThrottle
	events   EventSink
	urls     *SignedURLBuilder
	scanner  *util.Scanner
}

type HandlerDeps struct {
	Config   *configuration.Config
	Log      *zap.Logger
	Pipeline *imaging.Pipeline
	Blobs    storage.BlobStore
	Photos   PhotoRepo
	Owners   *services.OwnershipValidator
	Tokens   *token.Codec
	Throttle *throttle.PhotoThrottle
	Events   EventSink
	URLs     *SignedURLBuilder
	Scanner  *util.Scanner
}

func NewHandler(deps HandlerDeps) *Handler {
	return &Handler{
		cfg:      deps.Config,
		log:      deps.Log,
		pipeline: deps.Pipeline,
		blobs:    deps.Blobs,
		photos:   deps.Photos,
		owners:   deps.Owners,
		tokens:   deps.Tokens,
		throttle: deps.Throttle,
		events:   deps.Events,
		urls:     deps.URLs,
		scanner:  deps.Scanner,
	}
}

// errorJSON writes the uniform error body used by every photo endpoint.
func errorJSON(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"statusCode": status, "message": message})
}
