package api

import (
	"net/http"
	"strings"

	"github.com/dunamismax/photoflow/internal/domain"
	"github.com/dunamismax/photoflow/internal/id"
	"github.com/dunamismax/photoflow/internal/queue"
	"go.uber.org/zap"
)

func (s *Server) handleCreateEdit(w http.ResponseWriter, r *http.Request) {
	photo, ok := s.ownedPhoto(w, r)
	if !ok {
		return
	}

	var req domain.CreateEditRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if s.queueClient == nil {
		writeError(w, http.StatusServiceUnavailable, "edit queue is unavailable")
		return
	}

	user := currentUser(r)
	now := s.now().UTC()
	job := domain.EditJob{
		ID:         id.New(),
		PhotoID:    photo.ID,
		UserID:     user.ID,
		Username:   user.Username,
		Status:     domain.JobStatusCreated,
		Title:      strings.TrimSpace(req.Title),
		Recipe:     req.Recipe,
		WebhookURL: req.WebhookURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	log := s.logger.With(zap.String("job_id", job.ID), zap.String("photo_id", photo.ID))

	if err := s.jobs.CreateEditJob(r.Context(), job); err != nil {
		log.Error("create edit job failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create edit job")
		return
	}

	taskInfo, err := s.queueClient.EnqueueEditPhoto(r.Context(), queue.PayloadFor(job, now))
	if err != nil {
		log.Error("enqueue failed", zap.Error(err))
		if _, ferr := s.jobs.FinishEditJob(r.Context(), job.ID, domain.JobStatusFailed, "", "enqueue failed"); ferr != nil {
			log.Warn("mark edit job failed", zap.Error(ferr))
		}
		writeError(w, http.StatusServiceUnavailable, "failed to enqueue edit job")
		return
	}
	s.metrics.queueEnqueued.WithLabelValues(taskInfo.Queue).Inc()

	if updated, err := s.jobs.UpdateEditJobStatus(r.Context(), job.ID, domain.JobStatusQueued); err != nil {
		log.Warn("update status failed", zap.Error(err))
	} else {
		job = updated
	}

	w.Header().Set("Location", "/v1/edits/"+job.ID)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job":         job,
		"queue":       taskInfo.Queue,
		"task_id":     taskInfo.ID,
		"enqueued_at": taskInfo.NextProcessAt,
	})
}

func (s *Server) handleGetEdit(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	job, ok, err := s.jobs.GetEditJob(r.Context(), jobID)
	if err != nil {
		s.logger.Error("load edit job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load edit job")
		return
	}
	if !ok || job.UserID != currentUser(r).ID {
		writeError(w, http.StatusNotFound, "edit job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}
