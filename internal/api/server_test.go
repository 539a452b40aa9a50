package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dunamismax/photoflow/internal/auth"
	"github.com/dunamismax/photoflow/internal/config"
	"github.com/dunamismax/photoflow/internal/domain"
	"github.com/dunamismax/photoflow/internal/queue"
	"github.com/dunamismax/photoflow/internal/ratelimit"
	"github.com/dunamismax/photoflow/internal/storage"
	"github.com/dunamismax/photoflow/internal/store"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "api-test-secret"

type harness struct {
	handler http.Handler
	store   *store.MemoryStore
	blobs   *storage.MemoryStore
	queue   *fakeEnqueuer
}

func testConfig() config.Config {
	return config.Config{
		App: config.AppConfig{Name: "photoflow", Environment: "development"},
		API: config.APIConfig{MaxUploadBytes: 1 << 20, MaxFilesPerUpload: 2, StorageQuotaBytes: 1000},
		RateLimit: config.RateLimitConfig{
			Enabled:           false,
			RequestsPerWindow: 100,
			Window:            15 * time.Minute,
			Backend:           "memory",
		},
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
		},
	}
}

func newHarness(t *testing.T, cfg config.Config, limiter RateLimiter) harness {
	t.Helper()

	st := store.NewMemoryStore()
	blobs := storage.NewMemoryStore("http://blobs.local")
	q := &fakeEnqueuer{}
	verifier, err := auth.NewVerifier(testSecret, "photoflow")
	require.NoError(t, err)

	s, err := NewServer(zap.NewNop(), cfg, Dependencies{
		Photos:      st,
		Jobs:        st,
		Blobs:       blobs,
		Queue:       q,
		Verifier:    verifier,
		RateLimiter: limiter,
	})
	require.NoError(t, err)
	return harness{handler: s.Handler(), store: st, blobs: blobs, queue: q}
}

func tokenFor(t *testing.T, userID, username string) string {
	t.Helper()
	token, err := auth.Sign(testSecret, "photoflow", auth.User{ID: userID, Username: username}, time.Hour, time.Now())
	require.NoError(t, err)
	return token
}

func (h harness) do(t *testing.T, method, path, token string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h harness) upload(t *testing.T, token string, files map[string][]byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("description", "holiday"))
	for name, data := range files {
		part, err := mw.CreateFormFile(uploadField, name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return h.do(t, http.MethodPost, "/v1/photos", token, &body, mw.FormDataContentType())
}

func seedPhoto(t *testing.T, h harness, userID string) domain.Photo {
	t.Helper()
	ctx := context.Background()
	_, err := h.blobs.Put(ctx, userID+"/1-seed.png", pngBytes(t, 20, 10), "image/png")
	require.NoError(t, err)
	photo := domain.Photo{
		ID:          "photo-" + userID,
		UserID:      userID,
		Title:       "seed",
		BlobName:    userID + "/1-seed.png",
		ContentType: "image/png",
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, h.store.CreatePhoto(ctx, photo))
	return photo
}

func TestHealthzIsPublic(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	rec := h.do(t, http.MethodGet, "/healthz", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newHarness(t, testConfig(), nil)

	rec := h.do(t, http.MethodGet, "/v1/photos", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodGet, "/v1/photos", "not-a-jwt", nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUploadListAndExport(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	token := tokenFor(t, "u1", "Alice Smith")

	rec := h.upload(t, token, map[string][]byte{
		"beach.png":  pngBytes(t, 30, 20),
		"forest.png": pngBytes(t, 8, 8),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Photos []domain.Photo `json:"photos"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Len(t, created.Photos, 2)
	for _, p := range created.Photos {
		assert.Equal(t, "image/png", p.ContentType)
		assert.Equal(t, "holiday", p.Description)
		assert.True(t, strings.HasPrefix(p.BlobURL, "http://blobs.local/alice-smith/"), p.BlobURL)
		assert.NotZero(t, p.Width)
	}
	assert.Equal(t, 2, h.blobs.Len())

	rec = h.do(t, http.MethodGet, "/v1/photos", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Photos []domain.PhotoSummary `json:"photos"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed.Photos, 2)

	rec = h.do(t, http.MethodGet, "/v1/photos/export", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var exported struct {
		Photos []domain.PhotoExport `json:"photos"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exported))
	require.Len(t, exported.Photos, 2)
	assert.Positive(t, exported.Photos[0].Size)

	rec = h.do(t, http.MethodGet, "/v1/photos", tokenFor(t, "u2", "bob"), nil, "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Empty(t, listed.Photos)
}

func TestUploadRejections(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	token := tokenFor(t, "u1", "alice")

	rec := h.upload(t, token, map[string][]byte{"notes.txt": []byte("just some text, not an image")})
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = h.upload(t, token, map[string][]byte{
		"a.png": pngBytes(t, 2, 2),
		"b.png": pngBytes(t, 2, 2),
		"c.png": pngBytes(t, 2, 2),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.upload(t, token, map[string][]byte{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	cfg := testConfig()
	cfg.API.MaxUploadBytes = 64
	small := newHarness(t, cfg, nil)
	rec = small.upload(t, token, map[string][]byte{"big.png": pngBytes(t, 40, 40)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	assert.Equal(t, 0, h.blobs.Len())
}

func TestPhotoOwnership(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	photo := seedPhoto(t, h, "u1")

	rec := h.do(t, http.MethodGet, "/v1/photos/"+photo.ID, tokenFor(t, "u2", "bob"), nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/v1/photos/"+photo.ID, tokenFor(t, "u1", "alice"), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.Photo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, photo.ID, got.ID)
}

func TestPhotoImageProxy(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	photo := seedPhoto(t, h, "u1")

	rec := h.do(t, http.MethodGet, "/v1/photos/"+photo.ID+"/image", tokenFor(t, "u1", "alice"), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 10), img.Bounds())
}

func TestDeletePhotoRemovesBlobAndMetadata(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	photo := seedPhoto(t, h, "u1")
	token := tokenFor(t, "u1", "alice")

	rec := h.do(t, http.MethodDelete, "/v1/photos/"+photo.ID, token, nil, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, h.blobs.Len())

	_, ok, err := h.store.GetPhoto(context.Background(), photo.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	rec = h.do(t, http.MethodDelete, "/v1/photos/"+photo.ID, token, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateAndGetEdit(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	photo := seedPhoto(t, h, "u1")
	token := tokenFor(t, "u1", "alice")

	body := bytes.NewBufferString(`{"title":"cropped","recipe":{"crop":{"x":0,"y":0,"width":10,"height":10,"aspect":"1:1"},"filters":{"brightness":110,"contrast":100,"saturation":100},"output":{"format":"png"}}}`)
	rec := h.do(t, http.MethodPost, "/v1/photos/"+photo.ID+"/edits", token, body, "application/json")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp struct {
		Job domain.EditJob `json:"job"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.JobStatusQueued, resp.Job.Status)
	assert.Equal(t, "/v1/edits/"+resp.Job.ID, rec.Header().Get("Location"))

	payloads := h.queue.Payloads()
	require.Len(t, payloads, 1)
	assert.Equal(t, resp.Job.ID, payloads[0].JobID)
	assert.Equal(t, photo.ID, payloads[0].PhotoID)
	assert.Equal(t, "u1", payloads[0].UserID)
	assert.Equal(t, "alice", payloads[0].Username)
	require.NotNil(t, payloads[0].Recipe.Crop)

	rec = h.do(t, http.MethodGet, "/v1/edits/"+resp.Job.ID, token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/v1/edits/"+resp.Job.ID, tokenFor(t, "u2", "bob"), nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateEditValidation(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	photo := seedPhoto(t, h, "u1")
	token := tokenFor(t, "u1", "alice")

	rec := h.do(t, http.MethodPost, "/v1/photos/"+photo.ID+"/edits", token,
		bytes.NewBufferString(`{"recipe":{"filters":{"brightness":300,"contrast":100,"saturation":100}}}`), "application/json")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "brightness")

	rec = h.do(t, http.MethodPost, "/v1/photos/"+photo.ID+"/edits", token, bytes.NewBufferString(`{"recipe":`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/v1/photos/missing/edits", token, bytes.NewBufferString(`{"recipe":{}}`), "application/json")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Empty(t, h.queue.Payloads())
}

func TestCreateEditEnqueueFailure(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	photo := seedPhoto(t, h, "u1")
	h.queue.err = errors.New("redis down")

	rec := h.do(t, http.MethodPost, "/v1/photos/"+photo.ID+"/edits", tokenFor(t, "u1", "alice"),
		bytes.NewBufferString(`{"recipe":{}}`), "application/json")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMemoryRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerWindow = 2
	h := newHarness(t, cfg, nil)
	token := tokenFor(t, "u1", "alice")

	for i := 0; i < 2; i++ {
		rec := h.do(t, http.MethodGet, "/v1/photos", token, nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := h.do(t, http.MethodGet, "/v1/photos/export", token, nil, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = h.do(t, http.MethodGet, "/v1/photos", tokenFor(t, "u2", "bob"), nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitAppliesBeforeAuth(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerWindow = 2
	h := newHarness(t, cfg, nil)

	for i := 0; i < 2; i++ {
		rec := h.do(t, http.MethodGet, "/v1/photos", "", nil, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := h.do(t, http.MethodGet, "/v1/photos", "", nil, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	limiter := &fakeLimiter{decision: ratelimit.Decision{Allowed: true}}
	shared := newHarness(t, cfg, limiter)
	rec = shared.do(t, http.MethodGet, "/v1/photos", "not-a-token", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "ip:192.0.2.1", limiter.lastSubject)
}

func TestSharedRateLimiter(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Enabled = true
	limiter := &fakeLimiter{decision: ratelimit.Decision{Allowed: false, RetryAfter: 2500 * time.Millisecond}}
	h := newHarness(t, cfg, limiter)

	rec := h.do(t, http.MethodGet, "/v1/photos", tokenFor(t, "u1", "alice"), nil, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("Retry-After"))
	assert.Equal(t, "user:u1", limiter.lastSubject)

	limiter.decision = ratelimit.Decision{Allowed: true, Remaining: 41}
	rec = h.do(t, http.MethodGet, "/v1/photos", tokenFor(t, "u1", "alice"), nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "41", rec.Header().Get("X-RateLimit-Remaining"))

	limiter.err = errors.New("redis down")
	rec = h.do(t, http.MethodGet, "/v1/photos", tokenFor(t, "u1", "alice"), nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t, testConfig(), nil)

	req := httptest.NewRequest(http.MethodOptions, "/v1/photos", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/v1/photos", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMe(t *testing.T) {
	h := newHarness(t, testConfig(), nil)

	rec := h.do(t, http.MethodGet, "/v1/me", tokenFor(t, "u1", "alice"), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		User struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "u1", body.User.ID)
	assert.Equal(t, "alice", body.User.Username)

	rec = h.do(t, http.MethodGet, "/v1/me", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStorageUsage(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	ctx := context.Background()
	for i, p := range []domain.Photo{
		{ID: "p1", UserID: "u1", Size: 300},
		{ID: "p2", UserID: "u1", Size: 450},
		{ID: "p3", UserID: "u2", Size: 9000},
	} {
		p.CreatedAt = time.Unix(int64(i), 0)
		require.NoError(t, h.store.CreatePhoto(ctx, p))
	}

	rec := h.do(t, http.MethodGet, "/v1/usage/storage", tokenFor(t, "u1", "alice"), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var usage struct {
		UsedBytes      int64 `json:"used_bytes"`
		TotalBytes     int64 `json:"total_bytes"`
		RemainingBytes int64 `json:"remaining_bytes"`
		PhotoCount     int   `json:"photo_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &usage))
	assert.Equal(t, int64(750), usage.UsedBytes)
	assert.Equal(t, int64(1000), usage.TotalBytes)
	assert.Equal(t, int64(250), usage.RemainingBytes)
	assert.Equal(t, 2, usage.PhotoCount)

	rec = h.do(t, http.MethodGet, "/v1/usage/storage", tokenFor(t, "u2", "bob"), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &usage))
	assert.Equal(t, int64(9000), usage.UsedBytes)
	assert.Equal(t, int64(0), usage.RemainingBytes)
}

func TestRouteLabel(t *testing.T) {
	cases := map[string]string{
		"/healthz":              "/healthz",
		"/metrics":              "/metrics",
		"/v1/photos":            "/v1/photos",
		"/v1/photos/export":     "/v1/photos/export",
		"/v1/photos/abc":        "/v1/photos/{id}",
		"/v1/photos/abc/image":  "/v1/photos/{id}/image",
		"/v1/photos/abc/edits":  "/v1/photos/{id}/edits",
		"/v1/edits/job-1":       "/v1/edits/{id}",
		"/v1/me":                "/v1/me",
		"/v1/usage/storage":     "/v1/usage/storage",
		"/v1/photos/abc/nested": "other",
		"/favicon.ico":          "other",
	}
	for path, want := range cases {
		if got := routeLabel(path); got != want {
			t.Fatalf("routeLabel(%q) = %q, want %q", path, got, want)
		}
	}
}

type fakeEnqueuer struct {
	mu       sync.Mutex
	payloads []queue.EditPhotoPayload
	err      error
}

func (f *fakeEnqueuer) EnqueueEditPhoto(_ context.Context, payload queue.EditPhotoPayload) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.payloads = append(f.payloads, payload)
	return &asynq.TaskInfo{ID: payload.JobID, Queue: "default", NextProcessAt: time.Now()}, nil
}

func (f *fakeEnqueuer) Payloads() []queue.EditPhotoPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]queue.EditPhotoPayload(nil), f.payloads...)
}

type fakeLimiter struct {
	decision    ratelimit.Decision
	err         error
	lastSubject string
}

func (f *fakeLimiter) Allow(_ context.Context, subject string) (ratelimit.Decision, error) {
	f.lastSubject = subject
	return f.decision, f.err
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 11), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
