package httpclient

import (
	"github.com/ncpmeplmls0614/requests"
	"go.uber.org/zap"
)

// Page is the part of a response the probes look at
type Page struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        string
	Truncated   bool
}

// StreamingResponseHandler provides size-limited access to a response
type StreamingResponseHandler struct {
	response *requests.Response
	maxSize  int64
	logger   *zap.Logger
}

// NewStreamingResponseHandler creates a new streaming response handler
func NewStreamingResponseHandler(resp *requests.Response, maxSize int64, logger *zap.Logger) *StreamingResponseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamingResponseHandler{
		response: resp,
		maxSize:  maxSize,
		logger:   logger,
	}
}

// GetSafeText returns the response text truncated to maxSize.
// The second value reports whether truncation happened.
func (h *StreamingResponseHandler) GetSafeText() (string, bool) {
	if h.response == nil {
		return "", false
	}

	content := h.response.Content()
	if int64(len(content)) > h.maxSize {
		h.logger.Debug("response truncated",
			zap.Int("size", len(content)),
			zap.Int64("limit", h.maxSize))
		return string(content[:h.maxSize]), true
	}
	return string(content), false
}

// Page converts the response into a Page for requestURL
func (h *StreamingResponseHandler) Page(requestURL string) Page {
	p := Page{URL: requestURL, FinalURL: requestURL}
	if h.response == nil {
		return p
	}

	p.StatusCode = h.response.StatusCode()
	if u := h.response.Url(); u != nil {
		p.FinalURL = u.String()
	}
	p.ContentType = h.response.Headers().Get("Content-Type")
	p.Body, p.Truncated = h.GetSafeText()
	return p
}
