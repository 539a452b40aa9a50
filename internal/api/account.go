package api

import (
	"net/http"

	"github.com/dunamismax/photoflow/internal/domain"
	"go.uber.org/zap"
)

const defaultStorageQuota = 1 << 30

type profileResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"user": profileResponse{ID: user.ID, Username: user.Username},
	})
}

func (s *Server) handleStorageUsage(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	photos, err := s.photos.ListPhotos(r.Context(), user.ID)
	if err != nil {
		s.logger.Error("list photos for usage failed", zap.String("user_id", user.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to compute storage usage")
		return
	}

	quota := s.cfg.API.StorageQuotaBytes
	if quota <= 0 {
		quota = defaultStorageQuota
	}
	usage := domain.UsageOf(photos, quota)
	writeJSON(w, http.StatusOK, map[string]any{
		"used_bytes":      usage.UsedBytes,
		"total_bytes":     usage.TotalBytes,
		"remaining_bytes": usage.RemainingBytes(),
		"photo_count":     usage.PhotoCount,
	})
}
