package photo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/StevenACZ/peso-tracker-backend/internal/api/middleware"
	"github.com/StevenACZ/peso-tracker-backend/internal/configuration"
	"github.com/StevenACZ/peso-tracker-backend/internal/errs"
	"github.com/StevenACZ/peso-tracker-backend/internal/imaging"
	"github.com/StevenACZ/peso-tracker-backend/internal/models"
	"github.com/StevenACZ/peso-tracker-backend/internal/services"
	"github.com/StevenACZ/peso-tracker-backend/internal/storage"
	"github.com/StevenACZ/peso-tracker-backend/internal/throttle"
	"github.com/StevenACZ/peso-tracker-backend/internal/token"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRepo struct {
	mu          sync.Mutex
	owners      map[string]string
	photos      map[string]models.Photo
	saveErr     error
	byWeightErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		owners: make(map[string]string),
		photos: make(map[string]models.Photo),
	}
}

func (r *fakeRepo) FindWeightOwner(_ context.Context, weightID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[weightID]
	if !ok {
		return "", errs.ErrNotFound
	}
	return owner, nil
}

func (r *fakeRepo) SavePhoto(_ context.Context, photo models.Photo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	// One photo per weight record, like the upsert in the real store.
	for id, existing := range r.photos {
		if existing.WeightID == photo.WeightID {
			delete(r.photos, id)
		}
	}
	r.photos[photo.ID] = photo
	return nil
}

func (r *fakeRepo) GetPhoto(_ context.Context, photoID string) (models.Photo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	photo, ok := r.photos[photoID]
	if !ok {
		return models.Photo{}, errs.ErrNotFound
	}
	return photo, nil
}

func (r *fakeRepo) GetPhotoByWeightID(_ context.Context, weightID string) (models.Photo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byWeightErr != nil {
		return models.Photo{}, r.byWeightErr
	}
	for _, photo := range r.photos {
		if photo.WeightID == weightID {
			return photo, nil
		}
	}
	return models.Photo{}, errs.ErrNotFound
}

func (r *fakeRepo) DeletePhoto(_ context.Context, photoID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.photos[photoID]; !ok {
		return errs.ErrNotFound
	}
	delete(r.photos, photoID)
	return nil
}

type recordingSink struct {
	mu       sync.Mutex
	subjects []string
}

func (s *recordingSink) Publish(subject string, _ interface{}) {
	s.mu.Lock()
	s.subjects = append(s.subjects, subject)
	s.mu.Unlock()
}

func (s *recordingSink) published() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.subjects...)
}

type fixture struct {
	router *gin.Engine
	codec  *token.Codec
	blobs  *storage.LocalStore
	repo   *fakeRepo
	events *recordingSink
	cfg    *configuration.Config
}

func newFixture(t *testing.T, throttleOpts throttle.Options) *fixture {
	t.Helper()
	log := zap.NewNop()

	cfg := &configuration.Config{
		Server: configuration.ServerConfig{BaseURL: "http://localhost:8080"},
		Signing: configuration.SigningConfig{
			Secret:      "test-secret",
			TokenTTL:    15 * time.Minute,
			CacheMaxAge: 10 * time.Second,
		},
		Uploads: configuration.UploadsConfig{MaxUploadBytes: 10 << 20},
	}

	blobs, err := storage.NewLocalStore(t.TempDir(), log)
	require.NoError(t, err)

	repo := newFakeRepo()
	codec := token.NewCodec(cfg.Signing.Secret)
	events := &recordingSink{}

	h := NewHandler(HandlerDeps{
		Config:   cfg,
		Log:      log,
		Pipeline: imaging.NewPipeline(log),
		Blobs:    blobs,
		Photos:   repo,
		Owners:   services.NewOwnershipValidator(repo, log),
		Tokens:   codec,
		Throttle: throttle.New(throttleOpts, log),
		Events:   events,
		URLs:     NewSignedURLBuilder(codec, cfg.Server.BaseURL, cfg.Signing.TokenTTL),
		Scanner:  nil,
	})

	router := gin.New()
	router.GET("/photos/secure/:token", h.ServeSecurePhoto)

	authed := router.Group("/api/photos")
	authed.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-Test-User"); id != "" {
			middleware.SetUserID(c, id)
		}
		c.Next()
	})
	authed.POST("", h.UploadPhoto)
	authed.GET("/:id", h.GetPhoto)
	authed.DELETE("/:id", h.DeletePhoto)

	return &fixture{router: router, codec: codec, blobs: blobs, repo: repo, events: events, cfg: cfg}
}

func defaultThrottleOpts() throttle.Options {
	return throttle.Options{
		Window:        time.Minute,
		MaxRequests:   100,
		MaxFailures:   5,
		BlockDuration: 15 * time.Minute,
	}
}

// storePhoto writes a single full-size derivative and registers its owner.
func (f *fixture) storePhoto(t *testing.T, userID, weightID string, data []byte) string {
	t.Helper()
	f.repo.mu.Lock()
	f.repo.owners[weightID] = userID
	f.repo.mu.Unlock()

	path, err := f.blobs.Write(context.Background(), userID, weightID, storage.NewStamp(), models.SizeFull, data)
	require.NoError(t, err)
	return path
}

func (f *fixture) get(target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestServeSecurePhoto(t *testing.T) {
	f := newFixture(t, defaultThrottleOpts())
	data := []byte("jpeg bytes")
	path := f.storePhoto(t, "42", "7", data)

	signed, err := f.codec.Issue(path, "42", "", time.Minute)
	require.NoError(t, err)

	w := f.get("/photos/secure/"+signed, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, data, w.Body.Bytes())
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, "private, max-age=10", w.Header().Get("Cache-Control"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", w.Header().Get("Referrer-Policy"))
}

func TestServeSecurePhotoForgedOwnerClaim(t *testing.T) {
	f := newFixture(t, defaultThrottleOpts())
	path := f.storePhoto(t, "42", "7", []byte("x"))

	// The token claims user 99, but the path and the weight record both
	// belong to user 42.
	signed, err := f.codec.Issue(path, "99", "", time.Minute)
	require.NoError(t, err)

	w := f.get("/photos/secure/"+signed, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Access denied")
}

func TestServeSecurePhotoForgedPathOwner(t *testing.T) {
	f := newFixture(t, defaultThrottleOpts())
	f.storePhoto(t, "42", "7", []byte("x"))

	// Consistent-looking token and path for user 99, but the weight record
	// belongs to 42. The data store is authoritative.
	signed, err := f.codec.Issue("99/7/1690000000_full.jpg", "99", "", time.Minute)
	require.NoError(t, err)

	w := f.get("/photos/secure/"+signed, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestServeSecurePhotoExpiredToken(t *testing.T) {
	f := newFixture(t, defaultThrottleOpts())
	path := f.storePhoto(t, "42", "7", []byte("x"))

	signed, err := f.codec.Issue(path, "42", "", -time.Minute)
	require.NoError(t, err)

	w := f.get("/photos/secure/"+signed, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Token expired")
}

func TestServeSecurePhotoMalformedToken(t *testing.T) {
	f := newFixture(t, defaultThrottleOpts())

	w := f.get("/photos/secure/not-a-token", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid token")
}

func TestServeSecurePhotoMissingWeightRecord(t *testing.T) {
	f := newFixture(t, defaultThrottleOpts())

	signed, err := f.codec.Issue("42/7/1690000000_full.jpg", "42", "", time.Minute)
	require.NoError(t, err)

	w := f.get("/photos/secure/"+signed, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServeSecurePhotoMissingFile(t *testing.T) {
	f := newFixture(t, defaultThrottleOpts())
	f.repo.owners["7"] = "42"

	signed, err := f.codec.Issue("42/7/1690000000_full.jpg", "42", "", time.Minute)
	require.NoError(t, err)

	w := f.get("/photos/secure/"+signed, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Photo not found")
}

func TestServeSecurePhotoDeviceMismatch(t *testing.T) {
	f := newFixture(t, defaultThrottleOpts())
	path := f.storePhoto(t, "42", "7", []byte("x"))

	signed, err := f.codec.Issue(path, "42", "ios", time.Minute)
	require.NoError(t, err)

	w := f.get("/photos/secure/"+signed, map[string]string{"X-Client-Device": "android"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.get("/photos/secure/"+signed, map[string]string{"X-Client-Device": "ios"})
	assert.Equal(t, http.StatusOK, w.Code)

	// A client that sends no device header is not penalized.
	w = f.get("/photos/secure/"+signed, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServeSecurePhotoFailureEscalation(t *testing.T) {
	opts := defaultThrottleOpts()
	opts.MaxFailures = 3
	f := newFixture(t, opts)
	path := f.storePhoto(t, "42", "7", []byte("x"))

	signed, err := f.codec.Issue(path, "42", "", time.Minute)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		w := f.get("/photos/secure/garbage", nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
	}

	// Even a perfectly valid token bounces once the client is blocked.
	w := f.get("/photos/secure/"+signed, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestServeSecurePhotoRequestLimit(t *testing.T) {
	opts := defaultThrottleOpts()
	opts.MaxRequests = 2
	f := newFixture(t, opts)
	path := f.storePhoto(t, "42", "7", []byte("x"))

	signed, err := f.codec.Issue(path, "42", "", time.Minute)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		w := f.get("/photos/secure/"+signed, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := f.get("/photos/secure/"+signed, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}
