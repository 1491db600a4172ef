// Package collytransport implements probe.Transport using gocolly.
package collytransport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/idprobe/internal/probe"
)

const defaultTimeout = 5 * time.Second

// Config controls collector behavior.
type Config struct {
	// Timeout caps every request, including the robots.txt lookup.
	Timeout       time.Duration
	RespectRobots bool
	// MaxBodySize limits how much of a response body is read. Probes only need
	// the status line, so this stays small.
	MaxBodySize int
	Logger      *zap.Logger
}

// Transport issues single GET requests through a Colly collector without
// following redirects.
type Transport struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Transport.
func New(cfg Config) *Transport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 64 * 1024
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(cfg.MaxBodySize),
	)
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	c.SetRequestTimeout(cfg.Timeout)
	// The 3xx response itself is the answer; its Location is never fetched.
	c.SetRedirectHandler(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	})

	var rt http.RoundTripper = newHTTPTransport()
	if cfg.RespectRobots {
		rt = &robotsAwareTransport{base: rt, logger: logger}
	}
	c.WithTransport(rt)

	return &Transport{cfg: cfg, baseCollector: c, logger: logger}
}

// Probe executes one GET for req.URL and reports the status code and the URL
// the response was served for.
func (t *Transport) Probe(ctx context.Context, req probe.Request) (probe.Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = t.cfg.Timeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		result   probe.Response
		fetchErr error
	)
	collector := t.buildCollector(reqCtx, req, &result, &fetchErr)
	if err := t.runCollector(reqCtx, collector, req.URL, &fetchErr); err != nil {
		return probe.Response{}, err
	}
	return result, nil
}

func (t *Transport) buildCollector(
	ctx context.Context,
	req probe.Request,
	result *probe.Response,
	fetchErr *error,
) *colly.Collector {
	collector := t.baseCollector.Clone()
	collector.Context = ctx
	if req.UserAgent != "" {
		collector.UserAgent = req.UserAgent
	}
	configureCollectorHooks(collector, result, fetchErr)
	return collector
}

func configureCollectorHooks(hooks collectorHooks, result *probe.Response, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*result = probe.Response{
			StatusCode: r.StatusCode,
			FinalURL:   r.Request.URL.String(),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (t *Transport) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly probe canceled: %w", ctx.Err())
	case err := <-done:
		if errors.Is(err, colly.ErrRobotsTxtBlocked) {
			t.logger.Debug("robots.txt disallows probe", zap.String("url", url))
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
}
