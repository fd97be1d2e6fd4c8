package probe

import (
	"context"
	"time"

	"go.uber.org/zap"

	"social-checker/internal/platform"
	"social-checker/pkg/httpclient"
	"social-checker/pkg/types"
	"social-checker/pkg/utils"
)

// Fetcher fetches one page. *httpclient.Session implements it.
type Fetcher interface {
	Get(ctx context.Context, url string) (httpclient.Page, error)
	Close() error
}

// HTTPOptions configures HTTPFactory
type HTTPOptions struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
	Logger       *zap.Logger

	// NewFetcher overrides how sessions are created; nil uses httpclient
	NewFetcher func(ctx context.Context, workerID int) (Fetcher, error)
}

// HTTPFactory opens a fresh HTTP session per worker for one platform
type HTTPFactory struct {
	platform platform.Platform
	opts     HTTPOptions
}

// NewHTTPFactory creates a factory checking profiles on p
func NewHTTPFactory(p platform.Platform, opts HTTPOptions) *HTTPFactory {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.NewFetcher == nil {
		opts.NewFetcher = func(ctx context.Context, _ int) (Fetcher, error) {
			return httpclient.NewSession(ctx, httpclient.Options{
				Timeout:      opts.Timeout,
				UserAgent:    opts.UserAgent,
				MaxBodyBytes: opts.MaxBodyBytes,
				Logger:       opts.Logger,
			})
		}
	}
	return &HTTPFactory{platform: p, opts: opts}
}

func (f *HTTPFactory) Open(ctx context.Context, workerID int) (Session, error) {
	fetcher, err := f.opts.NewFetcher(ctx, workerID)
	if err != nil {
		return nil, err
	}
	return &httpSession{
		platform: f.platform,
		fetcher:  fetcher,
		logger:   f.opts.Logger.With(zap.Int("worker", workerID)),
	}, nil
}

type httpSession struct {
	platform platform.Platform
	fetcher  Fetcher
	logger   *zap.Logger
}

func (s *httpSession) Check(ctx context.Context, username string) (types.ProbeOutcome, error) {
	url := utils.ExpandTemplate(s.platform.URLTemplate, username)

	page, err := s.fetcher.Get(ctx, url)
	if err != nil {
		return types.ProbeOutcome{}, &ProbeError{Username: username, URL: url, Err: err}
	}

	outcome := Classify(s.platform, page)
	s.logger.Debug("probed",
		zap.String("username", username),
		zap.Int("status_code", page.StatusCode),
		zap.Stringer("status", outcome.Status),
		zap.String("diagnostic", outcome.Diagnostic))
	return outcome, nil
}

func (s *httpSession) Close() error {
	return s.fetcher.Close()
}

// RegistryResolver builds an HTTPFactory for any platform in a registry
type RegistryResolver struct {
	Registry *platform.Registry
	Options  HTTPOptions
}

// Resolve returns the canonical platform name and a factory for it
func (r RegistryResolver) Resolve(name string) (string, Factory, error) {
	p, err := r.Registry.Lookup(name)
	if err != nil {
		return "", nil, err
	}
	return p.Name, NewHTTPFactory(p, r.Options), nil
}
