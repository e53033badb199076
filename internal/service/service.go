// Package service orchestrates one image request end to end: authorize,
// parse, resolve, consult the result storage, and on a miss load the
// source, guard it and run the pipeline.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"refract-server-go/internal/engine"
	"refract-server-go/internal/filters"
	"refract-server-go/internal/imagepath"
	"refract-server-go/internal/pipeline"
	platformerrors "refract-server-go/internal/platform/errors"
	"refract-server-go/internal/security"
	"refract-server-go/internal/storage"
)

// Config carries the orchestration knobs. Zero timeouts disable the
// corresponding deadline; zero TTL stores results without expiry.
type Config struct {
	LoadTimeout    time.Duration
	ProcessTimeout time.Duration
	ResultTTL      time.Duration
}

// Response is one processed request ready to be written out. Meta carries
// the utility-filter directives the transport turns into headers.
type Response struct {
	Data        []byte
	ContentType string
	Image       string
	Meta        filters.Meta
}

// Processor wires the collaborators together. A nil results store
// disables result caching entirely.
type Processor struct {
	cfg      Config
	signer   *security.Signer
	resolver *filters.Resolver
	guard    *security.Guard
	loader   storage.Loader
	results  storage.Store
	executor *pipeline.Executor
	group    singleflight.Group
	log      *slog.Logger
}

func NewProcessor(cfg Config, signer *security.Signer, resolver *filters.Resolver,
	guard *security.Guard, loader storage.Loader, results storage.Store,
	executor *pipeline.Executor, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		cfg:      cfg,
		signer:   signer,
		resolver: resolver,
		guard:    guard,
		loader:   loader,
		results:  results,
		executor: executor,
		log:      log,
	}
}

// ImageMeta is the JSON body served for metadata requests in place of
// pixels. Dimensions describe the processed result, not the source.
type ImageMeta struct {
	Format      string `json:"format"`
	ContentType string `json:"content_type"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// Params parses and authorizes a path without executing it. The debug
// endpoint serves the result verbatim.
func (p *Processor) Params(rawPath string) (imagepath.Params, error) {
	params, err := imagepath.Parse(rawPath)
	if err != nil {
		return imagepath.Params{}, err
	}
	if err := p.signer.Verify(params.Unsafe, params.Hash, params.Path); err != nil {
		return imagepath.Params{}, err
	}
	return params, nil
}

// Process handles one request path. Every error it returns carries a kind
// the transport maps to a status code.
func (p *Processor) Process(ctx context.Context, rawPath string) (Response, error) {
	const op = "service.process"

	if p.cfg.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.ProcessTimeout)
		defer cancel()
	}

	params, err := imagepath.Parse(rawPath)
	if err != nil {
		return Response{}, err
	}
	if err := p.signer.Verify(params.Unsafe, params.Hash, params.Path); err != nil {
		return Response{}, err
	}
	resolved, err := p.resolver.Resolve(params.Filters)
	if err != nil {
		return Response{}, err
	}

	key := imagepath.ResultStorageKey(params)
	cacheable := p.results != nil && !resolved.Meta.Raw && !resolved.Meta.Preview

	if cacheable {
		if blob, err := p.results.Get(ctx, key); err == nil {
			return Response{
				Data:        blob.Data,
				ContentType: blob.ContentType,
				Image:       params.Image,
				Meta:        resolved.Meta,
			}, nil
		} else if !errors.Is(err, storage.ErrNotFound) {
			p.log.Warn("result storage lookup failed", "key", key, "error", err)
		}
	}

	// Concurrent requests for the same key share one execution; the
	// first failure propagates to every waiter.
	v, err, _ := p.group.Do(key, func() (any, error) {
		return p.produce(ctx, key, params, resolved, cacheable)
	})
	if err != nil {
		return Response{}, p.mapDeadline(ctx, op, err)
	}
	return v.(Response), nil
}

func (p *Processor) produce(ctx context.Context, key string, params imagepath.Params,
	resolved filters.Resolved, cacheable bool) (Response, error) {
	source, err := p.load(ctx, params.Image)
	if err != nil {
		return Response{}, err
	}

	probe, err := p.guard.Check(source.Data)
	if err != nil {
		return Response{}, err
	}

	resp := Response{Image: params.Image, Meta: resolved.Meta}

	if resolved.Meta.Raw {
		resp.Data = source.Data
		resp.ContentType = source.ContentType
		if resp.ContentType == "" {
			resp.ContentType = engine.ContentType(probe.Format)
		}
		return resp, nil
	}

	result, err := p.executor.Execute(ctx, source.Data, params, resolved)
	if err != nil {
		return Response{}, err
	}
	resp.Data = result.Data
	resp.ContentType = result.ContentType

	if params.Meta {
		data, contentType, err := metaBody(resp.Data)
		if err != nil {
			return Response{}, err
		}
		resp.Data = data
		resp.ContentType = contentType
	}

	if cacheable {
		p.writeBack(ctx, key, storage.Blob{Data: resp.Data, ContentType: resp.ContentType})
	}
	return resp, nil
}

// load fetches the source bytes under the load deadline. Exhausted loader
// chains surface as source-not-found, deadlines as timeouts.
func (p *Processor) load(ctx context.Context, uri string) (storage.Blob, error) {
	const op = "service.load"

	if p.cfg.LoadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.LoadTimeout)
		defer cancel()
	}

	blob, err := p.loader.Load(ctx, uri)
	if err == nil {
		return blob, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return storage.Blob{}, platformerrors.Wrap(platformerrors.KindTimeout, op,
			"loading source image timed out", err)
	}
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Blob{}, platformerrors.Wrap(platformerrors.KindSource, op,
			"source image not found", err)
	}
	return storage.Blob{}, platformerrors.Wrap(platformerrors.KindSource, op,
		"loading source image", err)
}

// writeBack persists a result. Failures are logged, never returned; a
// broken result storage degrades to cache misses, not request errors.
func (p *Processor) writeBack(ctx context.Context, key string, blob storage.Blob) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := p.results.Put(wctx, key, blob, p.cfg.ResultTTL); err != nil {
		p.log.Warn("result storage write failed", "key", key, "error", err)
	}
}

func (p *Processor) mapDeadline(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return platformerrors.Wrap(platformerrors.KindTimeout, op,
			"request deadline exceeded", err)
	}
	return err
}

func metaBody(data []byte) ([]byte, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", platformerrors.Wrap(platformerrors.KindEngine, "service.meta",
			"probing processed image", err)
	}
	body, err := json.Marshal(ImageMeta{
		Format:      format,
		ContentType: "image/" + format,
		Width:       cfg.Width,
		Height:      cfg.Height,
	})
	if err != nil {
		return nil, "", platformerrors.Wrap(platformerrors.KindEngine, "service.meta",
			"encoding metadata", err)
	}
	return body, "application/json", nil
}
