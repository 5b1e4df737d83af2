// Package ingest sequences an upload attempt from acquisition to library.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"DropFM/core/acquire"
	"DropFM/core/events"
	"DropFM/core/merge"
	"DropFM/core/pipeline"
	"DropFM/core/processor"
	"DropFM/core/progress"
	"DropFM/core/validator"
	"DropFM/logger"
	"DropFM/model"
	"DropFM/repository"
	"DropFM/storage"
)

const defaultAttemptTimeout = 30 * time.Minute

// SubmitRequest is one ingestion request. Source is the URL for youtube and
// spotify; Files carries the parts of a file upload.
type SubmitRequest struct {
	Kind   model.SourceKind
	Source string
	Files  []acquire.FilePart
}

// ProcessorResolver picks the processor for one attempt.
type ProcessorResolver interface {
	Resolve(ctx context.Context) processor.Processor
}

// Merger moves organized output into a library.
type Merger interface {
	Merge(ctx context.Context, srcDir, libraryDir string) (*merge.Result, error)
}

// Deps wires a Service. Logs, Validator, Acquirers, Processors, Merger,
// Library and Staging are required.
type Deps struct {
	Logs       repository.UploadLogRepository
	Validator  *validator.Validator
	Acquirers  acquire.Router
	Processors ProcessorResolver
	Merger     Merger
	Library    *LibraryResolver
	Staging    *Staging

	Mirror   storage.Mirror
	Progress progress.Publisher
	Events   events.Notifier

	// AttemptTimeout bounds everything an attempt does after submission.
	AttemptTimeout time.Duration
	// MaxConcurrent limits running workers; 0 means unlimited.
	MaxConcurrent int
}

// Service runs upload attempts.
type Service struct {
	deps Deps
	sem  chan struct{}
	wg   sync.WaitGroup
	now  func() time.Time
}

func NewService(deps Deps) (*Service, error) {
	switch {
	case deps.Logs == nil:
		return nil, errors.New("ingest: upload log repository is required")
	case deps.Validator == nil:
		return nil, errors.New("ingest: validator is required")
	case deps.Acquirers == nil:
		return nil, errors.New("ingest: acquirers are required")
	case deps.Processors == nil:
		return nil, errors.New("ingest: processor resolver is required")
	case deps.Merger == nil:
		return nil, errors.New("ingest: merger is required")
	case deps.Library == nil || deps.Staging == nil:
		return nil, errors.New("ingest: library and staging are required")
	}
	if deps.Mirror == nil {
		deps.Mirror = storage.Nop{}
	}
	if deps.Progress == nil {
		deps.Progress = progress.Nop{}
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	if deps.AttemptTimeout <= 0 {
		deps.AttemptTimeout = defaultAttemptTimeout
	}
	s := &Service{deps: deps, now: time.Now}
	if deps.MaxConcurrent > 0 {
		s.sem = make(chan struct{}, deps.MaxConcurrent)
	}
	return s, nil
}

// attempt is the state one worker owns.
type attempt struct {
	id      int64
	owner   model.Owner
	kind    model.SourceKind
	source  string
	library string
	area    *Area
	parts   []acquire.FilePart
}

// Submit validates the request, records a pending attempt and starts it.
// The returned id is non-zero once a log row exists. File uploads are copied
// into staging before Submit returns, since the request body does not
// outlive the request; a failure there is recorded and also returned.
// Everything else runs in the background and ends in completed or failed.
func (s *Service) Submit(ctx context.Context, owner model.Owner, req SubmitRequest) (int64, error) {
	source, err := s.validate(req)
	if err != nil {
		return 0, err
	}
	library, err := s.deps.Library.Resolve(owner)
	if err != nil {
		return 0, fmt.Errorf("resolve library: %w", err)
	}

	// store writes must not be abandoned when the client goes away
	storeCtx := context.WithoutCancel(ctx)

	id, err := s.deps.Logs.Create(storeCtx, &model.UploadLog{
		UserID:     owner.UserID,
		SourceKind: req.Kind,
		Source:     source,
	})
	if err != nil {
		return 0, pipeline.Wrap(pipeline.ErrStore, "create", "record attempt", err)
	}
	a := &attempt{id: id, owner: owner, kind: req.Kind, source: source, library: library, parts: req.Files}

	logger.Info("Upload attempt created",
		logger.AttemptID(id),
		logger.Int64("userId", owner.UserID),
		logger.String("kind", string(req.Kind)))

	a.area, err = s.deps.Staging.Allocate(id)
	if err != nil {
		err = pipeline.Wrap(pipeline.ErrAcquisition, "staging", "allocate", err)
		s.finish(storeCtx, a, 0, err)
		return id, err
	}

	if err := s.deps.Logs.Transition(storeCtx, id, model.UploadStatusProcessing, model.TransitionFields{StagingDir: a.area.Dir}); err != nil {
		err = pipeline.Wrap(pipeline.ErrStore, "transition", "mark processing", err)
		s.finish(storeCtx, a, 0, err)
		return id, err
	}

	if req.Kind == model.SourceFile {
		// parts are already buffered server-side, a disconnect must not abort the copy
		n, err := s.deps.Acquirers.Acquire(storeCtx, s.acquireRequest(a))
		if err != nil {
			s.finish(storeCtx, a, 0, err)
			return id, err
		}
		a.parts = nil
		s.report(a, fmt.Sprintf("staged %d files", n))
		s.start(ctx, a, false)
		return id, nil
	}

	s.start(ctx, a, true)
	return id, nil
}

func (s *Service) validate(req SubmitRequest) (string, error) {
	if !req.Kind.Valid() {
		return "", s.deps.Validator.Validate(req.Kind, req.Source)
	}
	if _, ok := s.deps.Acquirers[req.Kind]; !ok {
		return "", pipeline.Wrap(pipeline.ErrValidation, string(req.Kind), "source is disabled", nil)
	}
	if req.Kind != model.SourceFile {
		if err := s.deps.Validator.Validate(req.Kind, req.Source); err != nil {
			return "", err
		}
		return req.Source, nil
	}

	if len(req.Files) == 0 {
		return "", pipeline.Wrap(pipeline.ErrValidation, "upload", "no files in request", nil)
	}
	names := make([]string, 0, len(req.Files))
	for _, part := range req.Files {
		if err := s.deps.Validator.ValidateFilename(part.Name); err != nil {
			return "", err
		}
		names = append(names, part.Name)
	}
	return strings.Join(names, ", "), nil
}

func (s *Service) acquireRequest(a *attempt) acquire.Request {
	return acquire.Request{
		Kind:       a.kind,
		Source:     a.source,
		Parts:      a.parts,
		StagingDir: a.area.Incoming,
		Progress:   func(msg string) { s.report(a, msg) },
	}
}

// start runs the rest of the attempt on its own goroutine, detached from the
// caller's context.
func (s *Service) start(parent context.Context, a *attempt, needAcquire bool) {
	base := context.WithoutCancel(parent)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if s.sem != nil {
			s.report(a, "queued")
			s.sem <- struct{}{}
			defer func() { <-s.sem }()
		}

		ctx, cancel := context.WithTimeout(base, s.deps.AttemptTimeout)
		defer cancel()

		count, err := s.runSafely(ctx, a, needAcquire)
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, pipeline.ErrTimeout) {
			err = pipeline.Wrap(pipeline.ErrTimeout, "attempt", fmt.Sprintf("exceeded %s", s.deps.AttemptTimeout), err)
		}
		s.finish(base, a, count, err)
	}()
}

func (s *Service) runSafely(ctx context.Context, a *attempt, needAcquire bool) (count int, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Upload attempt panicked",
				logger.AttemptID(a.id),
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())))
			count, err = 0, fmt.Errorf("internal error: %v", r)
		}
	}()
	return s.run(ctx, a, needAcquire)
}

func (s *Service) run(ctx context.Context, a *attempt, needAcquire bool) (int, error) {
	staged := 0
	if needAcquire {
		s.report(a, "downloading")
		n, err := s.deps.Acquirers.Acquire(ctx, s.acquireRequest(a))
		if err != nil {
			return 0, err
		}
		staged = n
	}

	mergeSrc := a.area.Incoming
	proc := s.deps.Processors.Resolve(ctx)
	if proc.Enabled() {
		s.report(a, "organizing")
		n, err := proc.Process(ctx, a.area.Incoming, a.area.Organized)
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, pipeline.Wrap(pipeline.ErrProcessing, "process", "processor produced no files", nil)
		}
		mergeSrc = a.area.Organized
	} else {
		logger.Info("Processor disabled, merging staged files directly", logger.AttemptID(a.id), logger.Int("files", staged))
	}

	s.report(a, "merging into library")
	res, err := s.deps.Merger.Merge(ctx, mergeSrc, a.library)
	merged := 0
	if res != nil {
		merged = len(res.Merged)
		if merged > 0 {
			s.deps.Mirror.MirrorFiles(ctx, a.owner.UserID, a.library, res.Merged)
		}
	}
	if err != nil {
		return merged, err
	}
	if err := res.Err(); err != nil {
		return merged, err
	}
	if merged == 0 {
		return 0, pipeline.Wrap(pipeline.ErrMerge, "merge", "no files to merge", nil)
	}
	return merged, nil
}

// finish removes staging, then records the terminal state exactly once.
func (s *Service) finish(ctx context.Context, a *attempt, count int, runErr error) {
	a.area.Remove()

	completedAt := s.now().UTC()
	entry := model.UploadLog{
		ID:          a.id,
		UserID:      a.owner.UserID,
		SourceKind:  a.kind,
		Source:      a.source,
		Status:      model.UploadStatusCompleted,
		FileCount:   count,
		CompletedAt: &completedAt,
	}
	fields := model.TransitionFields{FileCount: count, CompletedAt: completedAt}
	if runErr != nil {
		msg := model.TruncateRunes(runErr.Error(), model.MaxErrorMessageLength)
		entry.Status = model.UploadStatusFailed
		entry.ErrorMessage = &msg
		fields.ErrorMessage = msg
	}

	if err := s.deps.Logs.Transition(ctx, a.id, entry.Status, fields); err != nil {
		logger.Error("Failed to record upload result",
			logger.AttemptID(a.id),
			logger.String("status", string(entry.Status)),
			logger.ErrorField(err))
	}

	if runErr != nil {
		logger.Warn("Upload attempt failed",
			logger.AttemptID(a.id),
			logger.String("kind", string(a.kind)),
			logger.String("errorKind", pipeline.Kind(runErr)),
			logger.ErrorField(runErr))
		s.deps.Progress.Publish(ctx, a.id, "failed: "+*entry.ErrorMessage, true)
	} else {
		logger.Info("Upload attempt completed",
			logger.AttemptID(a.id),
			logger.String("kind", string(a.kind)),
			logger.Int("files", count))
		s.deps.Progress.Publish(ctx, a.id, fmt.Sprintf("completed: %d files", count), true)
	}
	s.deps.Events.AttemptFinished(ctx, entry)
}

func (s *Service) report(a *attempt, msg string) {
	s.deps.Progress.Publish(context.Background(), a.id, msg, false)
}

// Wait blocks until every started attempt has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}
