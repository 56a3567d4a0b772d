// Package completion wraps the text/vision completion model behind a single
// client that owns retry, backoff and circuit-breaking. All model-assisted
// parsers share one Service so sustained outages fail fast instead of queuing
// unbounded retries.
package completion

import (
	"context"
	"time"
)

// Image is one inline image sent to a vision completion call.
type Image struct {
	Bytes    []byte
	MIMEType string
}

// Request describes a single completion call. A request with Images is routed
// to the multimodal model path.
type Request struct {
	System    string
	Prompt    string
	Images    []Image
	MaxTokens int32
	// Timeout boxes the individual model call, independent of the retry
	// policy layered on top. Zero means DefaultTextTimeout (or
	// DefaultVisionTimeout when Images are present).
	Timeout time.Duration
}

// Usage reports token accounting for one call.
type Usage struct {
	InputTokens  int32 `json:"input_tokens"`
	OutputTokens int32 `json:"output_tokens"`
}

// Response is the model's reply.
type Response struct {
	Content    string
	Usage      Usage
	StopReason string
}

// Generator is the interface parsers depend on. Implemented by Service.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Caller performs one raw model call with no resilience policy. Implemented
// by GeminiCaller; tests substitute fakes.
type Caller interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

const (
	// DefaultTextTimeout boxes text completion calls.
	DefaultTextTimeout = 90 * time.Second
	// DefaultVisionTimeout boxes vision completion calls, which carry image
	// payloads and run longer.
	DefaultVisionTimeout = 120 * time.Second
)
