// Package analysis produces the structured symptom assessment for
// non-emergency turns: it calls an external reasoning backend, normalises the
// reply against the result contract and falls back to a local keyword
// classifier whenever the backend cannot deliver a valid document.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"symptosafe/internal/logging"
)

var ErrMissingCredential = errors.New("reasoning service credential is not configured")

const DefaultTimeout = 25 * time.Second

// Request is what a reasoning backend receives for one turn.
type Request struct {
	SystemPrompt string
	Messages     []Message
	// Image, when set, belongs to the latest user message.
	Image    *Image
	Language string
}

// Reasoner is an external reasoning capability that returns the raw text of a
// single JSON document.
type Reasoner interface {
	Reason(ctx context.Context, req Request) (string, error)
}

type Options struct {
	Image    *Image
	Language string
}

// Analyzer sequences the reasoning call, contract normalisation and fallback.
// It keeps no per-turn state and is safe for concurrent use.
type Analyzer struct {
	reasoner Reasoner
	timeout  time.Duration
	logger   *zap.Logger
}

// NewAnalyzer returns an Analyzer. A nil reasoner is allowed and behaves like
// a missing credential: every turn uses the fallback.
func NewAnalyzer(r Reasoner, timeout time.Duration, logger *zap.Logger) *Analyzer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Analyzer{
		reasoner: r,
		timeout:  timeout,
		logger:   logging.OrNop(logger),
	}
}

// Analyze never fails: any error from the reasoning path is logged and
// replaced by the local fallback classification. The caller is expected to
// have run the emergency detector first.
func (a *Analyzer) Analyze(ctx context.Context, conversation []Message, opts Options) Result {
	res, err := a.reason(ctx, conversation, opts)
	if err == nil {
		return res
	}

	a.logger.Warn("analysis fell back to local heuristic",
		zap.String("reason", fallbackReason(err)),
		zap.Error(err),
	)
	return Normalize(ClassifyFallback(LatestUserText(conversation)))
}

// Fallback runs only the local classifier. Used when the caller explicitly
// wants an offline assessment.
func (a *Analyzer) Fallback(conversation []Message) Result {
	return Normalize(ClassifyFallback(LatestUserText(conversation)))
}

func (a *Analyzer) reason(ctx context.Context, conversation []Message, opts Options) (Result, error) {
	if a.reasoner == nil {
		return Result{}, ErrMissingCredential
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req := Request{
		SystemPrompt: SystemPrompt(opts.Language),
		Messages:     conversation,
		Image:        opts.Image,
		Language:     ResolveLanguage(opts.Language).String(),
	}

	type reply struct {
		raw string
		err error
	}
	// Buffered so a backend that ignores ctx cannot block forever on send.
	done := make(chan reply, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- reply{err: fmt.Errorf("reasoning backend panicked: %v", p)}
			}
		}()
		raw, err := a.reasoner.Reason(ctx, req)
		done <- reply{raw: raw, err: err}
	}()

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return Result{}, r.err
		}
		return ParseDocument(r.raw)
	}
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrInvalidDocument):
		return "invalid_document"
	default:
		return "reasoner_error"
	}
}
