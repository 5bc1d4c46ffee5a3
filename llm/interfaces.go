package llm

import (
	"context"
)

// Client provides a provider-neutral interface for making LLM API calls.
// Implementations should handle provider-specific details internally and
// return *Error values so callers can classify failures without string matching.
type Client interface {
	// Generate sends a request and returns the complete response text.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// ModelLister is implemented by clients that can enumerate installed models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]ModelDescriptor, error)
}

// WarmUpper is implemented by clients that can load a model into memory
// with a minimal, short-timeout request.
type WarmUpper interface {
	WarmUp(ctx context.Context, model string) error
}

// Pinger is implemented by clients with a cheap readiness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Middleware provides hooks for decorating Client calls.
// This allows adding cross-cutting concerns like logging and metrics.
type Middleware interface {
	// BeforeRequest is called before making an API request.
	// It can modify the request or return an error to abort the request.
	BeforeRequest(ctx context.Context, req *Request) (*Request, error)

	// AfterResponse is called after receiving a response.
	// It can modify the response or return an error.
	AfterResponse(ctx context.Context, req *Request, resp *Response) (*Response, error)

	// OnError is called when an error occurs.
	// It can return a modified error or nil to use the original error.
	OnError(ctx context.Context, req *Request, err error) error
}

// MiddlewareFunc is a function type that implements Middleware.
type MiddlewareFunc struct {
	BeforeRequestFunc func(ctx context.Context, req *Request) (*Request, error)
	AfterResponseFunc func(ctx context.Context, req *Request, resp *Response) (*Response, error)
	OnErrorFunc       func(ctx context.Context, req *Request, err error) error
}

// BeforeRequest calls the BeforeRequestFunc if set.
func (f MiddlewareFunc) BeforeRequest(ctx context.Context, req *Request) (*Request, error) {
	if f.BeforeRequestFunc != nil {
		return f.BeforeRequestFunc(ctx, req)
	}
	return req, nil
}

// AfterResponse calls the AfterResponseFunc if set.
func (f MiddlewareFunc) AfterResponse(ctx context.Context, req *Request, resp *Response) (*Response, error) {
	if f.AfterResponseFunc != nil {
		return f.AfterResponseFunc(ctx, req, resp)
	}
	return resp, nil
}

// OnError calls the OnErrorFunc if set.
func (f MiddlewareFunc) OnError(ctx context.Context, req *Request, err error) error {
	if f.OnErrorFunc != nil {
		return f.OnErrorFunc(ctx, req, err)
	}
	return err
}

// WrapWithMiddleware wraps a Client with middleware and returns a new Client.
// Middleware run in order for BeforeRequest and OnError, and in reverse
// order for AfterResponse.
func WrapWithMiddleware(client Client, middleware ...Middleware) Client {
	if len(middleware) == 0 {
		return client
	}
	return &clientWithMiddleware{
		client:     client,
		middleware: middleware,
	}
}

// clientWithMiddleware wraps a Client with middleware.
type clientWithMiddleware struct {
	client     Client
	middleware []Middleware
}

// Generate implements Client.Generate with middleware support.
func (c *clientWithMiddleware) Generate(ctx context.Context, req *Request) (*Response, error) {
	for _, mw := range c.middleware {
		var err error
		req, err = mw.BeforeRequest(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	resp, err := c.client.Generate(ctx, req)
	if err != nil {
		original := err
		for _, mw := range c.middleware {
			err = mw.OnError(ctx, req, err)
			if err == nil {
				err = original
				break
			}
		}
		return nil, err
	}

	for i := len(c.middleware) - 1; i >= 0; i-- {
		var err error
		resp, err = c.middleware[i].AfterResponse(ctx, req, resp)
		if err != nil {
			return nil, err
		}
	}

	return resp, nil
}

// Ensure clientWithMiddleware implements Client
var _ Client = (*clientWithMiddleware)(nil)
