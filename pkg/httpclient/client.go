package httpclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ncpmeplmls0614/requests"
	"go.uber.org/zap"
)

// DefaultUserAgent is sent when Options.UserAgent is empty
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultMaxBodyBytes caps how much of a page is kept in memory
const DefaultMaxBodyBytes = 2 << 20

// ErrClosed is returned by Get after Close
var ErrClosed = errors.New("session closed")

// Options configures a Session
type Options struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
	Logger       *zap.Logger
}

// Session is one worker's HTTP identity: its own client, connections and
// cookie jar. A Session is not shared between workers.
type Session struct {
	mu      sync.Mutex
	client  *requests.Client
	// ctx parents every connection of client; cancel tears them down
	ctx     context.Context
	cancel  context.CancelFunc
	maxBody int64
	logger  *zap.Logger
}

// NewSession creates a client with browser-like default headers
func NewSession(ctx context.Context, opts Options) (*Session, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	defaultHeaders := map[string]string{
		"User-Agent":      opts.UserAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
		"Connection":      "keep-alive",
	}

	// the session outlives a stopped run until its worker closes it
	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	client, err := requests.NewClient(sessCtx, requests.ClientOption{
		DisCookie: false,
		DisAlive:  false,
		Timeout:   opts.Timeout,
		Headers:   defaultHeaders,

		ResponseHeaderTimeout: opts.Timeout,
		TlsHandshakeTimeout:   5 * time.Second,
		DialTimeout:           5 * time.Second,
		KeepAlive:             30 * time.Second,
		MaxRetries:            0,
		MaxRedirectNum:        5,
	})
	if err != nil {
		cancel()
		return nil, err
	}

	return &Session{
		client:  client,
		ctx:     sessCtx,
		cancel:  cancel,
		maxBody: opts.MaxBodyBytes,
		logger:  opts.Logger,
	}, nil
}

// Get fetches url and returns the size-limited page
func (s *Session) Get(ctx context.Context, url string) (Page, error) {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return Page{}, ErrClosed
	}

	resp, err := client.Get(ctx, url, requests.RequestOption{})
	if err != nil {
		return Page{}, err
	}

	h := NewStreamingResponseHandler(resp, s.maxBody, s.logger)
	return h.Page(url), nil
}

// Close drops the session's pooled connections and cookie jar.
// Calling it twice is harmless.
func (s *Session) Close() error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()

	if client == nil {
		return nil
	}
	client.Close()
	s.cancel()
	return nil
}
