package source

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cyverse/go-imageloader/commons"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"golang.org/x/xerrors"
)

// HTTPSourceConfig configures HTTPSource
type HTTPSourceConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	UserAgent    string
	Referer      string
	// RequestsPerSecond limits outgoing requests, 0 means unlimited
	RequestsPerSecond float64
}

// HTTPSource fetches http and https uris
type HTTPSource struct {
	config  HTTPSourceConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPSource creates a HTTPSource, transport may be nil to use the default transport
func NewHTTPSource(config HTTPSourceConfig, transport http.RoundTripper) *HTTPSource {
	if transport == nil {
		transport = http.DefaultTransport
	}

	maxRedirects := config.MaxRedirects
	client := &http.Client{
		Transport: transport,
		Timeout:   config.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				// hand the redirect response to Fetch, which reports its target
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	var limiter *rate.Limiter
	if config.RequestsPerSecond > 0 {
		burst := int(config.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
	}

	return &HTTPSource{
		config:  config,
		client:  client,
		limiter: limiter,
	}
}

func (source *HTTPSource) Fetch(ctx context.Context, uri string) (*Response, error) {
	logger := log.WithFields(log.Fields{
		"package":  "source",
		"struct":   "HTTPSource",
		"function": "Fetch",
	})

	if source.limiter != nil {
		err := source.limiter.Wait(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, commons.NewIOError(uri, xerrors.Errorf("failed to wait for rate limiter: %w", err))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, commons.NewIOError(uri, xerrors.Errorf("failed to create request: %w", err))
	}

	if len(source.config.UserAgent) > 0 {
		req.Header.Set("User-Agent", source.config.UserAgent)
	}

	if len(source.config.Referer) > 0 {
		req.Header.Set("Referer", source.config.Referer)
	}

	logger.Debugf("requesting %q", uri)

	resp, err := source.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, commons.NewIOError(uri, err)
	}

	switch {
	case resp.StatusCode >= 300 && resp.StatusCode <= 399:
		drainAndClose(resp.Body)

		redirectURL, err := resp.Location()
		if err != nil {
			return nil, commons.NewIOError(uri, xerrors.Errorf("unexpected http status %d", resp.StatusCode))
		}

		logger.Debugf("%q redirects to %q beyond %d redirects", uri, redirectURL.String(), source.config.MaxRedirects)
		return &Response{
			Body:          http.NoBody,
			StatusCode:    resp.StatusCode,
			Location:      redirectURL.String(),
			ContentLength: 0,
		}, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		drainAndClose(resp.Body)
		return nil, commons.NewNotFoundError(uri)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		drainAndClose(resp.Body)
		return nil, commons.NewIOError(uri, xerrors.Errorf("unexpected http status %d", resp.StatusCode))
	}

	location := uri
	if resp.Request != nil && resp.Request.URL != nil {
		location = resp.Request.URL.String()
	}

	if location != uri {
		logger.Debugf("%q redirected to %q", uri, location)
	}

	return &Response{
		Body:          resp.Body,
		StatusCode:    resp.StatusCode,
		Location:      location,
		ContentLength: resp.ContentLength,
	}, nil
}

func drainAndClose(body io.ReadCloser) {
	io.Copy(io.Discard, io.LimitReader(body, 4096))
	body.Close()
}
