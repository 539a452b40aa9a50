package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync/atomic"

	"github.com/dunamismax/photoflow/internal/domain"
	"github.com/dunamismax/photoflow/internal/editor"
	"github.com/dunamismax/photoflow/internal/storage"
	"go.uber.org/zap"
)

var (
	ErrUnsupportedSourceType = errors.New("unsupported source type")
	ErrPhotoNotFound         = errors.New("photo not found")
	ErrInvalidRecipe         = errors.New("invalid recipe")
)

// Request describes one recipe run. Exactly one of PhotoID (a stored photo)
// or SourcePath (a local file) names the source.
type Request struct {
	JobID      string
	PhotoID    string
	SourcePath string
	UserID     string
	Username   string
	Title      string
	Recipe     domain.EditRecipe
}

func (r Request) sourceKey() string {
	if strings.TrimSpace(r.PhotoID) != "" {
		return r.PhotoID
	}
	return r.SourcePath
}

type Output struct {
	PhotoID     string
	Path        string
	URL         string
	Format      string
	ContentType string
	Bytes       int
	Width       int
	Height      int
}

type Result struct {
	Output       Output
	SourceBytes  int
	SourceWidth  int
	SourceHeight int
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

type Emitter interface {
	Emit(ctx context.Context, req Request, blob editor.Blob) (Output, error)
}

type Processor struct {
	fetcher        Fetcher
	encoder        editor.Encoder
	emitter        Emitter
	logger         *zap.Logger
	defaultFormat  string
	defaultQuality int
}

type Option func(*Processor)

func WithLogger(logger *zap.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithDefaults sets the export encoding used when a recipe names none.
func WithDefaults(format string, quality int) Option {
	return func(p *Processor) {
		p.defaultFormat = format
		p.defaultQuality = quality
	}
}

func WithEncoder(enc editor.Encoder) Option {
	return func(p *Processor) {
		if enc != nil {
			p.encoder = enc
		}
	}
}

func NewProcessor(fetcher Fetcher, emitter Emitter, opts ...Option) (*Processor, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if emitter == nil {
		return nil, errors.New("emitter is required")
	}

	encoder, err := newEncoder()
	if err != nil {
		return nil, fmt.Errorf("build encoder: %w", err)
	}

	p := &Processor{
		fetcher: fetcher,
		encoder: encoder,
		emitter: emitter,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func NewLocalProcessor(outputDir string, opts ...Option) (*Processor, error) {
	return NewProcessor(LocalFileFetcher{}, LocalFileEmitter{OutputDir: outputDir}, opts...)
}

// fetchError marks a failure of the Fetcher itself, as opposed to a decode
// failure of the bytes it returned.
type fetchError struct {
	err error
}

func (e *fetchError) Error() string { return e.err.Error() }
func (e *fetchError) Unwrap() error { return e.err }

// Permanent reports whether err will recur on retry: a bad recipe, a missing
// or undecodable source, or an editor validation failure. Fetch failures
// other than a missing source are treated as transient.
func Permanent(err error) bool {
	if errors.Is(err, ErrInvalidRecipe) ||
		errors.Is(err, ErrPhotoNotFound) ||
		errors.Is(err, ErrUnsupportedSourceType) ||
		errors.Is(err, storage.ErrNotFound) ||
		errors.Is(err, fs.ErrNotExist) {
		return true
	}
	var ferr *fetchError
	if errors.As(err, &ferr) {
		return false
	}
	var (
		verr *editor.ValidationError
		derr *editor.DecodeError
	)
	return errors.As(err, &verr) || errors.As(err, &derr)
}

// Process replays req.Recipe through an edit session and hands the export to
// the emitter. The session is saved only after the emitter succeeds.
func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return Result{}, errors.New("job_id is required")
	}
	if strings.TrimSpace(req.sourceKey()) == "" {
		return Result{}, fmt.Errorf("%w: request names no source", ErrUnsupportedSourceType)
	}
	if err := req.Recipe.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidRecipe, err)
	}

	var (
		sourceBytes atomic.Int64
		out         Output
	)
	fetcher := editor.FetcherFunc(func(ctx context.Context, _ string) ([]byte, error) {
		data, err := p.fetcher.Fetch(ctx, req)
		if err != nil {
			return nil, &fetchError{err: err}
		}
		sourceBytes.Store(int64(len(data)))
		return data, nil
	})

	format := req.Recipe.Output.Format
	if format == "" {
		format = p.defaultFormat
	}
	quality := req.Recipe.Output.Quality
	if quality == 0 {
		quality = p.defaultQuality
	}

	session := editor.NewSession(editor.Options{
		ID:      req.JobID,
		Fetcher: fetcher,
		Encoder: p.encoder,
		Logger:  p.logger,
		Format:  format,
		Quality: quality,
		Hooks: editor.Hooks{
			OnSave: func(ctx context.Context, blob editor.Blob) error {
				emitted, err := p.emitter.Emit(ctx, req, blob)
				if err != nil {
					return err
				}
				out = emitted
				return nil
			},
		},
	})
	defer session.Close()

	if err := session.Load(ctx, editor.Source{PhotoID: req.sourceKey()}); err != nil {
		return Result{}, fmt.Errorf("fetch stage: %w", err)
	}
	srcW, srcH, err := session.SourceSize()
	if err != nil {
		return Result{}, fmt.Errorf("fetch stage: %w", err)
	}

	if err := ApplyRecipe(session, req.Recipe); err != nil {
		return Result{}, fmt.Errorf("edit stage: %w", err)
	}

	if _, err := session.Save(ctx); err != nil {
		return Result{}, fmt.Errorf("emit stage: %w", err)
	}

	return Result{
		Output:       out,
		SourceBytes:  int(sourceBytes.Load()),
		SourceWidth:  srcW,
		SourceHeight: srcH,
	}, nil
}
