// Package editor implements the photo edit pipeline: a source image flows
// through crop, annotate and filter stages and is exported as one encoded
// blob. Every stage owns its own raster; buffers only move forward by copy.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dunamismax/photoflow/internal/id"
	"github.com/dunamismax/photoflow/internal/raster"
	"go.uber.org/zap"
)

// Stage is the step the session is currently in.
type Stage int

const (
	StageSource Stage = iota
	StageCrop
	StageAnnotate
	StageFilter
)

func (s Stage) String() string {
	switch s {
	case StageSource:
		return "source"
	case StageCrop:
		return "crop"
	case StageAnnotate:
		return "annotate"
	case StageFilter:
		return "filter"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Hooks connect a session to its host. OnSave is awaited before Save returns.
type Hooks struct {
	OnSave   func(ctx context.Context, blob Blob) error
	OnCancel func()
	OnClose  func()
}

type Options struct {
	ID      string
	Fetcher ImageFetcher
	Encoder Encoder
	Hooks   Hooks
	Logger  *zap.Logger
	// Format and Quality select the export encoding. Defaults: jpeg, 95.
	Format  string
	Quality int
}

// Session owns every stage buffer of one photo edit. Its methods are safe for
// concurrent use; the *Cropper and *Annotator it hands out belong to the
// caller's event loop and must not be mutated while Export runs.
type Session struct {
	mu sync.Mutex

	id      string
	fetcher ImageFetcher
	encoder Encoder
	hooks   Hooks
	logger  *zap.Logger
	format  string
	quality int

	closed     bool
	loadGen    uint64
	exportGen  uint64
	previewGen uint64

	stage        Stage
	source       *raster.Buffer
	sourceFormat string
	cropper      *Cropper
	cropped      *raster.Buffer
	annotator    *Annotator
	filterInput  *raster.Buffer
	filterParams FilterParameters
	filtered     *raster.Buffer
	previews     map[string]*Preview
}

func NewSession(opts Options) *Session {
	sessionID := opts.ID
	if sessionID == "" {
		sessionID = id.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	encoder := opts.Encoder
	if encoder == nil {
		encoder = DefaultEncoder
	}
	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = raster.DefaultQuality
	}

	return &Session{
		id:           sessionID,
		fetcher:      opts.Fetcher,
		encoder:      encoder,
		hooks:        opts.Hooks,
		logger:       logger.With(zap.String("session_id", sessionID)),
		format:       raster.NormalizeFormat(opts.Format),
		quality:      quality,
		filterParams: DefaultFilters(),
		previews:     make(map[string]*Preview),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Load fetches and decodes src and makes it the session source, resetting
// every stage. A newer Load supersedes this one: if another Load started or
// the session closed before decoding finished, the result is dropped and
// ErrDiscarded is returned without touching session state.
func (s *Session) Load(ctx context.Context, src Source) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.loadGen++
	gen := s.loadGen
	fetcher := s.fetcher
	s.mu.Unlock()

	buf, format, err := decodeSource(ctx, fetcher, src)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.loadGen {
		s.logger.Debug("dropping stale decode", zap.Stringer("source", src), zap.Uint64("generation", gen))
		return ErrDiscarded
	}
	if err != nil {
		s.logger.Warn("source decode failed", zap.Stringer("source", src), zap.Error(err))
		return err
	}

	s.source = buf
	s.sourceFormat = format
	s.cropper = NewCropper(buf.Width(), buf.Height())
	s.cropped = nil
	s.dropAnnotatorLocked()
	s.resetFilterStageLocked()
	s.filterParams = DefaultFilters()
	s.stage = StageCrop
	s.logger.Debug("source loaded",
		zap.Stringer("source", src),
		zap.String("format", format),
		zap.Int("width", buf.Width()),
		zap.Int("height", buf.Height()),
	)
	return nil
}

// LoadAsync runs Load in the background and delivers its error once.
func (s *Session) LoadAsync(ctx context.Context, src Source) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- s.Load(ctx, src)
	}()
	return done
}

func decodeSource(ctx context.Context, fetcher ImageFetcher, src Source) (*raster.Buffer, string, error) {
	data, err := resolveSource(ctx, fetcher, src)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return nil, "", err
		}
		return nil, "", &DecodeError{Err: err}
	}
	buf, format, err := raster.Decode(data)
	if err != nil {
		return nil, "", &DecodeError{Err: err}
	}
	return buf, format, nil
}

// SourceSize reports the natural size of the loaded source.
func (s *Session) SourceSize() (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return 0, 0, ErrNoSource
	}
	return s.source.Width(), s.source.Height(), nil
}

func (s *Session) SourceFormat() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sourceFormat
}

// Cropper returns the crop selection for the current source.
func (s *Session) Cropper() (*Cropper, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usableLocked(); err != nil {
		return nil, err
	}
	return s.cropper, nil
}

// ApplyCrop extracts the committed selection from the source. Annotations and
// filters made on a previous crop are discarded.
func (s *Session) ApplyCrop() (*raster.Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usableLocked(); err != nil {
		return nil, err
	}

	region, err := s.cropper.Commit()
	if err != nil {
		return nil, err
	}
	cropped, err := ExtractRegion(s.source, region)
	if err != nil {
		return nil, err
	}

	s.cropped = cropped
	s.dropAnnotatorLocked()
	s.resetFilterStageLocked()
	s.stage = StageAnnotate
	s.logger.Debug("crop applied",
		zap.Int("x", region.X),
		zap.Int("y", region.Y),
		zap.Int("width", region.Width),
		zap.Int("height", region.Height),
	)
	return cropped.Clone(), nil
}

// Annotator enters the annotate stage, seeding it from the crop output or the
// source. Returning to annotation drops any filter output.
func (s *Session) Annotator() (*Annotator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usableLocked(); err != nil {
		return nil, err
	}

	if s.stage == StageFilter {
		s.resetFilterStageLocked()
	}
	if s.annotator == nil {
		s.annotator = NewAnnotator(s.preAnnotateLocked())
	}
	s.annotator.frozen.Store(false)
	s.stage = StageAnnotate
	return s.annotator, nil
}

// EnterFilters snapshots the upstream output as the filter input. Pending
// filter values are kept; any previous filter output is dropped.
func (s *Session) EnterFilters() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usableLocked(); err != nil {
		return err
	}
	s.enterFiltersLocked()
	return nil
}

// dropAnnotatorLocked detaches the annotator; handles still held by callers
// stay frozen.
func (s *Session) dropAnnotatorLocked() {
	if s.annotator != nil {
		s.annotator.frozen.Store(true)
	}
	s.annotator = nil
}

func (s *Session) enterFiltersLocked() {
	if s.annotator != nil {
		s.annotator.EndStroke()
		s.annotator.frozen.Store(true)
		s.filterInput = s.annotator.Buffer()
	} else {
		s.filterInput = s.preAnnotateLocked().Clone()
	}
	s.filtered = nil
	s.stage = StageFilter
}

// SetFilters records pending filter values without rendering them.
func (s *Session) SetFilters(p FilterParameters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filterParams = p
}

func (s *Session) Filters() FilterParameters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterParams
}

// ApplyFilters renders the pending values against a fresh copy of the filter
// input. Applying twice gives the same result as applying once.
func (s *Session) ApplyFilters() (*raster.Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usableLocked(); err != nil {
		return nil, err
	}
	if s.stage != StageFilter || s.filterInput == nil {
		s.enterFiltersLocked()
	}

	s.filtered = ApplyFilters(s.filterInput, s.filterParams)
	return s.filtered.Clone(), nil
}

// ResetFilters restores 100/100/100 and shows the unmodified filter input.
func (s *Session) ResetFilters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filterParams = DefaultFilters()
	s.filtered = nil
}

// Output returns a copy of the last non-empty stage: filter if applied, else
// annotation if drawn on, else crop, else source.
func (s *Session) Output() (*raster.Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usableLocked(); err != nil {
		return nil, err
	}
	return s.outputLocked().Clone(), nil
}

func (s *Session) outputLocked() *raster.Buffer {
	switch {
	case s.filtered != nil:
		return s.filtered
	case s.annotator != nil && s.annotator.Touched():
		return s.annotator.canvas
	case s.cropped != nil:
		return s.cropped
	default:
		return s.source
	}
}

// Export encodes the current output. Encoding happens outside the session
// lock; if the session closes or a newer Export starts meanwhile the blob is
// dropped with ErrDiscarded.
func (s *Session) Export(ctx context.Context) (Blob, error) {
	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return Blob{}, err
	}
	snapshot := s.outputLocked().Clone()
	s.exportGen++
	gen := s.exportGen
	enc, format, quality := s.encoder, s.format, s.quality
	s.mu.Unlock()

	blob, err := EncodeBuffer(ctx, enc, snapshot, format, quality)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.exportGen {
		return Blob{}, ErrDiscarded
	}
	if err != nil {
		s.logger.Warn("export failed", zap.Error(err))
		return Blob{}, err
	}
	return blob, nil
}

// Save exports the output, awaits OnSave and then ends the session. When
// encoding or OnSave fails the session stays open so the user can retry.
func (s *Session) Save(ctx context.Context) (Blob, error) {
	blob, err := s.Export(ctx)
	if err != nil {
		return Blob{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Blob{}, ErrDiscarded
	}
	onSave := s.hooks.OnSave
	s.mu.Unlock()

	if onSave != nil {
		if err := onSave(ctx, blob); err != nil {
			return Blob{}, fmt.Errorf("save edited image: %w", err)
		}
	}

	s.logger.Debug("session saved", zap.String("format", blob.Format), zap.Int("bytes", blob.Size()))
	s.shutdown(nil)
	return blob, nil
}

// Cancel discards every buffer and notifies OnCancel.
func (s *Session) Cancel() {
	s.shutdown(s.hooks.OnCancel)
}

// Close tears the session down. Pending decodes and encodes complete as
// no-ops and all previews are released. Close is idempotent.
func (s *Session) Close() {
	s.shutdown(nil)
}

func (s *Session) shutdown(notify func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for previewID, p := range s.previews {
		p.release()
		delete(s.previews, previewID)
	}
	s.source = nil
	s.cropper = nil
	s.cropped = nil
	s.dropAnnotatorLocked()
	s.filterInput = nil
	s.filtered = nil
	onClose := s.hooks.OnClose
	s.mu.Unlock()

	if notify != nil {
		notify()
	}
	if onClose != nil {
		onClose()
	}
}

// Preview encodes the current output as a temporary blob tracked by the
// session. A newer Preview call supersedes one still encoding.
func (s *Session) Preview(ctx context.Context) (*Preview, error) {
	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	snapshot := s.outputLocked().Clone()
	s.previewGen++
	gen := s.previewGen
	enc := s.encoder
	s.mu.Unlock()

	blob, err := EncodeBuffer(ctx, enc, snapshot, raster.FormatJPEG, s.quality)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.previewGen {
		return nil, ErrDiscarded
	}
	if err != nil {
		return nil, err
	}

	p := &Preview{ID: id.New(), Blob: blob}
	s.previews[p.ID] = p
	return p, nil
}

// ReleasePreview frees a preview before the session ends.
func (s *Session) ReleasePreview(previewID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.previews[previewID]; ok {
		p.release()
		delete(s.previews, previewID)
	}
}

func (s *Session) LivePreviews() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.previews)
}

func (s *Session) usableLocked() error {
	if s.closed {
		return ErrClosed
	}
	if s.source == nil {
		return ErrNoSource
	}
	return nil
}

func (s *Session) preAnnotateLocked() *raster.Buffer {
	if s.cropped != nil {
		return s.cropped
	}
	return s.source
}

func (s *Session) resetFilterStageLocked() {
	s.filterInput = nil
	s.filtered = nil
}
