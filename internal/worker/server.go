package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dunamismax/photoflow/internal/config"
	"github.com/dunamismax/photoflow/internal/domain"
	"github.com/dunamismax/photoflow/internal/logger"
	"github.com/dunamismax/photoflow/internal/pipeline"
	"github.com/dunamismax/photoflow/internal/queue"
	"github.com/dunamismax/photoflow/internal/storage"
	"github.com/dunamismax/photoflow/internal/store"
	"github.com/dunamismax/photoflow/internal/webhook"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Server struct {
	logger            *zap.Logger
	server            *asynq.Server
	sem               chan struct{}
	processor         *pipeline.Processor
	webhookClient     webhookSender
	defaultWebhookURL string
	jobStore          store.EditJobStore
	usageStore        store.UsageStore
	metrics           *metrics
	tracer            trace.Tracer
	now               func() time.Time
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

type Dependencies struct {
	Photos  store.PhotoStore
	Jobs    store.EditJobStore
	Usage   store.UsageStore
	Blobs   storage.BlobStore
	Webhook *webhook.Client
}

func NewServer(logger *zap.Logger, cfg config.Config, deps Dependencies) (*Server, error) {
	if deps.Blobs == nil || deps.Photos == nil {
		return nil, errors.New("photo store and blob store are required")
	}
	if deps.Jobs == nil {
		return nil, errors.New("edit job store is required")
	}

	processor, err := pipeline.NewProcessor(
		pipeline.ObjectStoreFetcher{Photos: deps.Photos, Blobs: deps.Blobs},
		pipeline.ObjectStoreEmitter{Photos: deps.Photos, Blobs: deps.Blobs},
		pipeline.WithLogger(logger),
		pipeline.WithDefaults(cfg.Editor.DefaultFormat, cfg.Editor.DefaultQuality),
	)
	if err != nil {
		return nil, fmt.Errorf("initialize pipeline processor: %w", err)
	}

	s := newServer(logger, processor, deps.Jobs, deps.Usage, cfg.Worker.MaxActiveJobs)
	if deps.Webhook != nil {
		s.webhookClient = deps.Webhook
	}
	s.defaultWebhookURL = cfg.Webhook.URL
	s.server = asynq.NewServer(
		cfg.Queue.RedisClientOpt(),
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				cfg.Queue.Name: 1,
			},
			LogLevel: asynq.InfoLevel,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Warn("task failed",
					zap.String("type", task.Type()),
					zap.Int("retry", retried),
					zap.Int("max_retry", maxRetry),
					zap.Error(err),
				)
			}),
		},
	)
	return s, nil
}

func newServer(logger *zap.Logger, processor *pipeline.Processor, jobs store.EditJobStore, usage store.UsageStore, maxActive int) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if usage == nil {
		if jobAndUsageStore, ok := jobs.(store.UsageStore); ok {
			usage = jobAndUsageStore
		}
	}
	return &Server{
		logger:     logger,
		sem:        make(chan struct{}, max(1, maxActive)),
		processor:  processor,
		jobStore:   jobs,
		usageStore: usage,
		metrics:    newMetrics(),
		tracer:     otel.Tracer("photoflow/worker"),
		now:        time.Now,
	}
}

func (s *Server) mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeEditPhoto, s.handleEditPhoto)
	return mux
}

// Start begins consuming tasks in the background. Call Shutdown to stop.
func (s *Server) Start() error {
	return s.server.Start(s.mux())
}

func (s *Server) Shutdown() {
	if s.server != nil {
		s.server.Shutdown()
	}
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleEditPhoto(ctx context.Context, task *asynq.Task) error {
	startedAt := s.now()
	outcome := domain.JobStatusFailed

	payload, err := queue.ParseEditPhotoPayload(task)
	if err != nil {
		s.metrics.jobsTotal.WithLabelValues(outcome).Inc()
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}
	log := logger.WithJob(s.logger, payload.JobID, payload.PhotoID)

	ctx, span := s.tracer.Start(ctx, "worker.edit_photo", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("photo.id", payload.PhotoID),
		attribute.Bool("recipe.crop", payload.Recipe.Crop != nil),
		attribute.Int("recipe.strokes", len(payload.Recipe.Strokes)),
		attribute.Int("recipe.texts", len(payload.Recipe.Texts)),
		attribute.Bool("recipe.filters", payload.Recipe.Filters != nil),
	)
	defer span.End()

	if job, ok, err := s.jobStore.GetEditJob(ctx, payload.JobID); err == nil && ok && job.Finished() {
		log.Info("edit job already finished, skipping", zap.String("status", job.Status))
		span.SetStatus(codes.Ok, "already finished")
		return nil
	}

	defer func() {
		s.metrics.jobDuration.WithLabelValues(outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.jobsTotal.WithLabelValues(outcome).Inc()
	}()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		outcome = domain.JobStatusQueued
		return ctx.Err()
	}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	log.Info("editing photo",
		zap.Int("strokes", len(payload.Recipe.Strokes)),
		zap.Int("texts", len(payload.Recipe.Texts)),
	)
	s.updateJobStatus(ctx, log, payload.JobID, domain.JobStatusProcessing)

	result, err := s.processor.Process(ctx, pipeline.Request{
		JobID:    payload.JobID,
		PhotoID:  payload.PhotoID,
		UserID:   payload.UserID,
		Username: payload.Username,
		Title:    payload.Title,
		Recipe:   payload.Recipe,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "edit failed")

		permanent := pipeline.Permanent(err)
		if !permanent && !finalAttempt(ctx) {
			outcome = domain.JobStatusQueued
			log.Warn("edit failed, will retry", zap.Error(err))
			s.updateJobStatus(ctx, log, payload.JobID, domain.JobStatusQueued)
			return fmt.Errorf("run pipeline: %w", err)
		}

		log.Error("edit failed", zap.Error(err), zap.Bool("permanent", permanent))
		s.finishJob(ctx, log, payload.JobID, domain.JobStatusFailed, "", err.Error())
		s.dispatchWebhook(ctx, log, payload, webhook.EventEditFailed, webhook.EditEvent{
			JobID:      payload.JobID,
			PhotoID:    payload.PhotoID,
			Status:     domain.JobStatusFailed,
			Error:      err.Error(),
			FinishedAt: s.now().UTC(),
		})
		if permanent {
			return fmt.Errorf("run pipeline: %w: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("run pipeline: %w", err)
	}

	outcome = domain.JobStatusSucceeded
	log.Info("edit saved",
		zap.String("result_photo_id", result.Output.PhotoID),
		zap.Int("width", result.Output.Width),
		zap.Int("height", result.Output.Height),
		zap.Int("bytes", result.Output.Bytes),
	)
	s.finishJob(ctx, log, payload.JobID, domain.JobStatusSucceeded, result.Output.PhotoID, "")
	s.recordUsage(ctx, payload, result, time.Since(startedAt))
	s.dispatchWebhook(ctx, log, payload, webhook.EventEditCompleted, webhook.EditEvent{
		JobID:         payload.JobID,
		PhotoID:       payload.PhotoID,
		Status:        domain.JobStatusSucceeded,
		ResultPhotoID: result.Output.PhotoID,
		ResultURL:     result.Output.URL,
		FinishedAt:    s.now().UTC(),
	})

	span.SetAttributes(attribute.String("result.photo_id", result.Output.PhotoID))
	span.SetStatus(codes.Ok, "edited")
	return nil
}

// finalAttempt reports whether asynq will not retry the task again. Outside
// an asynq handler every attempt is final.
func finalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}

func (s *Server) updateJobStatus(ctx context.Context, log *zap.Logger, jobID, status string) {
	if _, err := s.jobStore.UpdateEditJobStatus(ctx, jobID, status); err != nil {
		log.Warn("job status update failed", zap.String("status", status), zap.Error(err))
	}
}

func (s *Server) finishJob(ctx context.Context, log *zap.Logger, jobID, status, resultPhotoID, errMsg string) {
	if _, err := s.jobStore.FinishEditJob(ctx, jobID, status, resultPhotoID, errMsg); err != nil {
		log.Error("job finish failed", zap.String("status", status), zap.Error(err))
	}
}

// dispatchWebhook delivers the event to the job's webhook, or the configured
// default one. Delivery failures are logged and counted but never fail the
// job: the edit itself is already stored.
func (s *Server) dispatchWebhook(ctx context.Context, log *zap.Logger, payload queue.EditPhotoPayload, event string, body webhook.EditEvent) {
	endpoint := strings.TrimSpace(payload.WebhookURL)
	if endpoint == "" {
		endpoint = strings.TrimSpace(s.defaultWebhookURL)
	}
	if endpoint == "" || s.webhookClient == nil {
		return
	}

	if err := s.webhookClient.Send(ctx, endpoint, event, body); err != nil {
		s.metrics.webhookFailuresTotal.WithLabelValues(event).Inc()
		log.Warn("webhook delivery failed", zap.String("event", event), zap.Error(err))
	}
}

func (s *Server) recordUsage(ctx context.Context, payload queue.EditPhotoPayload, result pipeline.Result, computeDuration time.Duration) {
	pixelsProcessed := int64(result.SourceWidth) * int64(result.SourceHeight)
	bytesIn := int64(result.SourceBytes)
	bytesOut := int64(result.Output.Bytes)

	computeTimeMS := computeDuration.Milliseconds()
	if computeTimeMS < 1 {
		computeTimeMS = 1
	}

	s.metrics.pixelsProcessedTotal.Add(float64(pixelsProcessed))
	s.metrics.bytesInTotal.Add(float64(bytesIn))
	s.metrics.bytesOutTotal.Add(float64(bytesOut))
	s.metrics.computeTimeMSTotal.Add(float64(computeTimeMS))

	if s.usageStore == nil {
		return
	}

	userID := strings.TrimSpace(payload.UserID)
	if userID == "" {
		userID = "anonymous"
	}

	usage := domain.UsageLog{
		UserID:          userID,
		JobID:           payload.JobID,
		PixelsProcessed: pixelsProcessed,
		BytesIn:         bytesIn,
		BytesOut:        bytesOut,
		ComputeTimeMS:   computeTimeMS,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.usageStore.CreateUsageLog(ctx, usage); err != nil {
		s.logger.Warn("usage log write failed", zap.String("job_id", payload.JobID), zap.Error(err))
	}
}
