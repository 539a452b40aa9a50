package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/dunamismax/photoflow/internal/domain"
	"github.com/dunamismax/photoflow/internal/id"
	"github.com/dunamismax/photoflow/internal/logger"
	"github.com/dunamismax/photoflow/internal/raster"
	"github.com/dunamismax/photoflow/internal/storage"
	"go.uber.org/zap"
)

const uploadField = "photos"

func (s *Server) handleUploadPhotos(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	maxFile := s.cfg.API.MaxUploadBytes
	maxFiles := s.cfg.API.MaxFilesPerUpload

	r.Body = http.MaxBytesReader(w, r.Body, maxFile*int64(maxFiles)+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	form := domain.PhotoUpload{
		Title:       strings.TrimSpace(r.FormValue("title")),
		Description: strings.TrimSpace(r.FormValue("description")),
	}
	if err := form.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	files := r.MultipartForm.File[uploadField]
	switch {
	case len(files) == 0:
		writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	case len(files) > maxFiles:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d files per upload", maxFiles))
		return
	}

	type upload struct {
		header      *multipart.FileHeader
		data        []byte
		contentType string
	}
	uploads := make([]upload, 0, len(files))
	for _, fh := range files {
		if fh.Size > maxFile {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("%s exceeds %d bytes", fh.Filename, maxFile))
			return
		}
		data, err := readUpload(fh, maxFile)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		contentType := http.DetectContentType(data)
		if !domain.IsAllowedContentType(contentType) {
			writeError(w, http.StatusUnsupportedMediaType, fmt.Sprintf("%s: only jpeg, png, gif and webp images are allowed", fh.Filename))
			return
		}
		uploads = append(uploads, upload{header: fh, data: data, contentType: contentType})
	}

	log := logger.WithRequest(s.logger, r.Method, r.URL.Path, r.Header.Get("X-Request-ID"))
	created := make([]domain.Photo, 0, len(uploads))
	for _, u := range uploads {
		photo, err := s.storePhoto(r, user.ID, user.Username, form, u.header.Filename, u.data, u.contentType)
		if err != nil {
			log.Error("store photo failed", zap.String("filename", u.header.Filename), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to store photo")
			return
		}
		created = append(created, photo)
	}

	log.Info("photos uploaded", zap.String("user_id", user.ID), zap.Int("count", len(created)))
	writeJSON(w, http.StatusCreated, map[string]any{"photos": created})
}

func readUpload(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%s exceeds %d bytes", fh.Filename, limit)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s is empty", fh.Filename)
	}
	return data, nil
}

// storePhoto uploads the blob and then records its metadata. A failed
// metadata write removes the blob again.
func (s *Server) storePhoto(r *http.Request, userID, username string, form domain.PhotoUpload, filename string, data []byte, contentType string) (domain.Photo, error) {
	ctx := r.Context()
	now := s.now().UTC()

	blobName := storage.UniqueBlobName(filename, username, now)
	url, err := s.blobs.Put(ctx, blobName, data, contentType)
	if err != nil {
		return domain.Photo{}, fmt.Errorf("upload blob: %w", err)
	}

	title := form.Title
	if title == "" {
		title = strings.TrimSuffix(filename, extOf(filename))
	}
	photo := domain.Photo{
		ID:          id.New(),
		UserID:      userID,
		Title:       title,
		Description: form.Description,
		BlobName:    blobName,
		BlobURL:     url,
		ContentType: contentType,
		Size:        int64(len(data)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if w, h, _, err := raster.Probe(data); err == nil {
		photo.Width, photo.Height = w, h
	}

	if err := s.photos.CreatePhoto(ctx, photo); err != nil {
		if delErr := s.blobs.Delete(ctx, blobName); delErr != nil {
			err = errors.Join(err, fmt.Errorf("remove orphaned blob: %w", delErr))
		}
		return domain.Photo{}, fmt.Errorf("save metadata: %w", err)
	}
	s.metrics.photosUploaded.WithLabelValues(contentType).Inc()
	s.metrics.uploadBytes.Observe(float64(photo.Size))
	return photo, nil
}

func extOf(name string) string {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[i:]
	}
	return ""
}

func (s *Server) handleListPhotos(w http.ResponseWriter, r *http.Request) {
	photos, err := s.photos.ListPhotos(r.Context(), currentUser(r).ID)
	if err != nil {
		s.logger.Error("list photos failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list photos")
		return
	}

	out := make([]domain.PhotoSummary, 0, len(photos))
	for _, p := range photos {
		out = append(out, p.Summary())
	}
	writeJSON(w, http.StatusOK, map[string]any{"photos": out})
}

func (s *Server) handleExportPhotos(w http.ResponseWriter, r *http.Request) {
	photos, err := s.photos.ListPhotos(r.Context(), currentUser(r).ID)
	if err != nil {
		s.logger.Error("export photos failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to export photos")
		return
	}

	out := make([]domain.PhotoExport, 0, len(photos))
	for _, p := range photos {
		out = append(out, p.Export())
	}
	writeJSON(w, http.StatusOK, map[string]any{"photos": out})
}

// ownedPhoto loads the {id} photo and writes a 404 unless the caller owns it.
func (s *Server) ownedPhoto(w http.ResponseWriter, r *http.Request) (domain.Photo, bool) {
	photoID := r.PathValue("id")
	photo, ok, err := s.photos.GetPhoto(r.Context(), photoID)
	if err != nil {
		s.logger.Error("load photo failed", zap.String("photo_id", photoID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load photo")
		return domain.Photo{}, false
	}
	if !ok || photo.UserID != currentUser(r).ID {
		writeError(w, http.StatusNotFound, "photo not found")
		return domain.Photo{}, false
	}
	return photo, true
}

func (s *Server) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	photo, ok := s.ownedPhoto(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, photo)
}

// handlePhotoImage streams the stored bytes so editors can load photos
// without direct blob store access.
func (s *Server) handlePhotoImage(w http.ResponseWriter, r *http.Request) {
	photo, ok := s.ownedPhoto(w, r)
	if !ok {
		return
	}

	data, err := s.blobs.Get(r.Context(), photo.BlobName)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}
	if err != nil {
		s.logger.Error("read blob failed", zap.String("photo_id", photo.ID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to fetch image")
		return
	}

	contentType := photo.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleDeletePhoto removes the blob first so a failure never leaves
// metadata pointing at nothing.
func (s *Server) handleDeletePhoto(w http.ResponseWriter, r *http.Request) {
	photo, ok := s.ownedPhoto(w, r)
	if !ok {
		return
	}

	if err := s.blobs.Delete(r.Context(), photo.BlobName); err != nil {
		s.logger.Error("delete blob failed", zap.String("photo_id", photo.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete photo")
		return
	}
	if err := s.photos.DeletePhoto(r.Context(), photo.ID); err != nil {
		s.logger.Error("delete photo metadata failed", zap.String("photo_id", photo.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete photo")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
