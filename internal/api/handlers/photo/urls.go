package photo

import (
	"fmt"
	"time"

	"github.com/StevenACZ/peso-tracker-backend/internal/models"
	"github.com/StevenACZ/peso-tracker-backend/internal/token"
)

// SignedURLBuilder turns stored derivative paths into time-limited URLs. The
// weights CRUD layer uses it whenever it returns a photo reference to a
// client; nothing outside this builder hands out raw storage paths.
type SignedURLBuilder struct {
	codec   *token.Codec
	baseURL string
	ttl     time.Duration
}

func NewSignedURLBuilder(codec *token.Codec, baseURL string, ttl time.Duration) *SignedURLBuilder {
	return &SignedURLBuilder{codec: codec, baseURL: baseURL, ttl: ttl}
}

// BuildPhotoURLs mints one token per derivative. device, when non-empty, is
// embedded so the serving endpoint can reject tokens presented by a
// mismatched client class.
func (b *SignedURLBuilder) BuildPhotoURLs(photo models.Photo, device string) (models.SignedPhotoURLs, error) {
	urls := make([]string, 0, 3)
	for _, path := range photo.Paths() {
		signed, err := b.codec.Issue(path, photo.UserID, device, b.ttl)
		if err != nil {
			return models.SignedPhotoURLs{}, fmt.Errorf("sign photo url: %w", err)
		}
		urls = append(urls, fmt.Sprintf("%s/photos/secure/%s", b.baseURL, signed))
	}
	return models.SignedPhotoURLs{
		ThumbnailURL: urls[0],
		MediumURL:    urls[1],
		FullURL:      urls[2],
		ExpiresIn:    int64(b.ttl.Seconds()),
	}, nil
}
