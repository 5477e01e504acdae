// Package rest holds the small amount of plumbing shared by the outbound JSON API clients.
package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/h2non/gentleman.v2"
	gcontext "gopkg.in/h2non/gentleman.v2/context"
	"gopkg.in/h2non/gentleman.v2/plugins/timeout"
)

const DefaultTimeout = 15 * time.Second

// APIError is returned for any non-2xx response
type APIError struct {
	Service string
	Status  int
	Body    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (%d): %s", e.Service, e.Status, e.Body)
}

// IsNotFound reports whether err is an APIError with status 404
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// NewClient creates a gentleman client bound to baseURL
func NewClient(baseURL string, requestTimeout time.Duration) *gentleman.Client {
	if requestTimeout <= 0 {
		requestTimeout = DefaultTimeout
	}

	cli := gentleman.New()
	cli.URL(baseURL)
	cli.Use(timeout.Request(requestTimeout))
	cli.SetHeader("Accept", "application/json")

	return cli
}

// WithContext binds ctx to the outgoing request so cancellation aborts it. The parent is set
// through gentleman's own context so the request store survives.
func WithContext(ctx context.Context, req *gentleman.Request) *gentleman.Request {
	req.UseRequest(func(c *gcontext.Context, h gcontext.Handler) {
		h.Next(c.SetCancelContext(ctx))
	})
	return req
}

// Do sends the request and decodes a 2xx JSON body into out (if not nil).
func Do(ctx context.Context, service string, req *gentleman.Request, out any) error {
	res, err := WithContext(ctx, req).Send()
	if err != nil {
		return errors.Wrapf(err, "%s request failed", service)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &APIError{Service: service, Status: res.StatusCode, Body: res.String()}
	}

	if out == nil {
		return nil
	}

	if err := res.JSON(out); err != nil {
		return errors.Wrapf(err, "failed to parse %s response", service)
	}

	return nil
}
