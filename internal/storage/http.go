package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	platformerrors "refract-server-go/internal/platform/errors"
)

// HTTPLoaderConfig tunes the HTTP fetch adaptor. AllowedSources holds
// host glob patterns ("*.example.com"); empty means any host.
type HTTPLoaderConfig struct {
	AllowedSources []string
	MaxBodySize    int64
	Timeout        time.Duration
	UserAgent      string
	DefaultScheme  string
}

// HTTPLoader fetches source images over HTTP(S). Image URIs arrive
// scheme-less from the URL grammar, so the configured default scheme is
// prepended when missing.
type HTTPLoader struct {
	cfg    HTTPLoaderConfig
	client *http.Client
}

func NewHTTPLoader(cfg HTTPLoaderConfig) *HTTPLoader {
	if cfg.DefaultScheme == "" {
		cfg.DefaultScheme = "https"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &HTTPLoader{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (l *HTTPLoader) Load(ctx context.Context, uri string) (Blob, error) {
	const op = "storage.http"

	if !strings.Contains(uri, "://") {
		uri = l.cfg.DefaultScheme + "://" + uri
	}
	u, err := url.Parse(uri)
	if err != nil {
		return Blob{}, platformerrors.Wrap(platformerrors.KindSource, op,
			"invalid source url", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Blob{}, platformerrors.Newf(platformerrors.KindSource, op,
			"unsupported scheme %q", u.Scheme)
	}
	if !l.hostAllowed(u.Hostname()) {
		return Blob{}, platformerrors.Newf(platformerrors.KindSource, op,
			"source host %q is not allowed", u.Hostname())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Blob{}, platformerrors.Wrap(platformerrors.KindSource, op,
			"building request", err)
	}
	if l.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", l.cfg.UserAgent)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return Blob{}, platformerrors.Wrap(platformerrors.KindSource, op,
			"fetching source", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Blob{}, fmt.Errorf("%s %s: %w", op, uri, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return Blob{}, platformerrors.Newf(platformerrors.KindSource, op,
			"source returned status %d", resp.StatusCode)
	}

	reader := io.Reader(resp.Body)
	if l.cfg.MaxBodySize > 0 {
		reader = io.LimitReader(resp.Body, l.cfg.MaxBodySize+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return Blob{}, platformerrors.Wrap(platformerrors.KindSource, op,
			"reading source body", err)
	}
	if l.cfg.MaxBodySize > 0 && int64(len(data)) > l.cfg.MaxBodySize {
		return Blob{}, platformerrors.Newf(platformerrors.KindResourceLimit, op,
			"source body exceeds %d bytes", l.cfg.MaxBodySize)
	}

	return Blob{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}

func (l *HTTPLoader) hostAllowed(host string) bool {
	if len(l.cfg.AllowedSources) == 0 {
		return true
	}
	for _, pattern := range l.cfg.AllowedSources {
		if ok, _ := path.Match(pattern, host); ok {
			return true
		}
	}
	return false
}
