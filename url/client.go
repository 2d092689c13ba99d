// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package url

import (
	"context"
	"fmt"
	"time"

	"github.com/cavaliergopher/grab/v3"
	"go.uber.org/zap"

	"github.com/gim-launcher/gim/metrics"
)

const defaultInterval = 250 * time.Millisecond

var _ Client = &client{}

type Client interface {
	// Download streams url into path, replacing whatever is there.
	Download(ctx context.Context, url string, path string, opts ...Option) error
}

type Option func(*options)

type options struct {
	headers  map[string]string
	progress func(float64)
	interval time.Duration
}

// WithHeader adds a request header, typically Authorization.
func WithHeader(key, value string) Option {
	return func(o *options) {
		o.headers[key] = value
	}
}

// WithProgress reports the completed fraction on every tick while the
// transfer runs.
func WithProgress(f func(float64)) Option {
	return func(o *options) {
		o.progress = f
	}
}

func WithInterval(d time.Duration) Option {
	return func(o *options) {
		o.interval = d
	}
}

type Config struct {
	Log     *zap.Logger
	Metrics *metrics.Metrics
}

func NewClient(config Config) Client {
	log := config.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &client{
		client:  grab.NewClient(),
		log:     log,
		metrics: config.Metrics,
	}
}

type client struct {
	client  *grab.Client
	log     *zap.Logger
	metrics *metrics.Metrics
}

func (h client) Download(ctx context.Context, url string, path string, opts ...Option) error {
	o := options{
		headers:  map[string]string{},
		interval: defaultInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}

	req, err := grab.NewRequest(path, url)
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	req.NoResume = true
	for key, value := range o.headers {
		req.HTTPRequest.Header.Set(key, value)
	}

	h.log.Info("downloading", zap.Stringer("url", req.URL()), zap.String("path", path))
	resp := h.client.Do(req)

	// Start progress loop
	t := time.NewTicker(o.interval)
	defer t.Stop()

Loop:
	for {
		select {
		case <-t.C:
			h.log.Debug("transferred",
				zap.Int64("bytes", resp.BytesComplete()),
				zap.Int64("size", resp.Size()),
			)
			if o.progress != nil {
				o.progress(resp.Progress())
			}

		case <-resp.Done:
			// download is complete
			break Loop
		}
	}

	// check for errors
	if err := resp.Err(); err != nil {
		return fmt.Errorf("download of %s failed: %w", url, err)
	}

	if o.progress != nil {
		o.progress(1)
	}
	h.metrics.Downloaded(resp.BytesComplete())
	h.log.Info("downloaded", zap.String("path", path), zap.Int64("bytes", resp.BytesComplete()))
	return nil
}
