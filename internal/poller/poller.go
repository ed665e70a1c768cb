// Package poller drives a long-running remote video job to completion:
// submit, poll on a fixed interval, re-authorize on credential expiry,
// then fetch the finished asset into local storage.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mediachat/internal/assets"
	"mediachat/internal/credential"
	"mediachat/internal/generation"
	"mediachat/internal/logger"
)

// Status messages reported while a video job runs.
const (
	StatusInitializing = "Initializing video generation..."
	StatusGenerating   = "Generating video frames... this may take a minute."
	StatusExpired      = "API key session expired. Please re-select your key."
)

// VideoParams are the fixed generation parameters of a video job.
type VideoParams struct {
	Model       string
	Resolution  string
	AspectRatio string
}

// Operation is the remote job descriptor as seen by the poller.
type Operation struct {
	Name         string
	Done         bool
	VideoURI     string
	ErrorMessage string

	// Handle carries the provider's own operation value between polls.
	Handle any
}

// VideoJobs is the remote long-running video capability.
type VideoJobs interface {
	// SubmitVideoJob starts a job and returns its initial descriptor.
	SubmitVideoJob(ctx context.Context, credential string, prompt string, params VideoParams) (*Operation, error)
	// PollVideoJob refreshes a job. It fails with an error wrapping
	// generation.ErrOperationNotFound when the credential session expired.
	PollVideoJob(ctx context.Context, credential string, op *Operation) (*Operation, error)
}

// Asset is a fetched media payload.
type Asset struct {
	MIMEType string
	Data     []byte
}

// AssetFetcher downloads a finished asset using the credential.
type AssetFetcher interface {
	FetchAsset(ctx context.Context, uri string, credential string) (*Asset, error)
}

// Policy controls polling cadence and re-authorization.
type Policy struct {
	Interval            time.Duration
	MaxReauthorizations int
	ReauthBackoff       time.Duration
	MaxBackoff          time.Duration
}

// DefaultPolicy returns the standard polling policy.
func DefaultPolicy() Policy {
	return Policy{
		Interval:            8 * time.Second,
		MaxReauthorizations: 3,
		ReauthBackoff:       2 * time.Second,
		MaxBackoff:          30 * time.Second,
	}
}

// backoff returns the wait before re-authorization attempt n (1-based).
func (p Policy) backoff(n int) time.Duration {
	if p.ReauthBackoff <= 0 {
		return 0
	}
	d := p.ReauthBackoff
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Poller implements generation.VideoRunner.
type Poller struct {
	jobs        VideoJobs
	fetcher     AssetFetcher
	credentials credential.Provider
	store       assets.Store
	params      VideoParams
	policy      Policy
	sleep       SleepFunc
}

// Option configures a Poller.
type Option func(*Poller)

// WithPolicy overrides the default policy.
func WithPolicy(policy Policy) Option {
	return func(p *Poller) { p.policy = policy }
}

// WithSleep replaces the wait function, for tests.
func WithSleep(fn SleepFunc) Option {
	return func(p *Poller) { p.sleep = fn }
}

// New creates a video poller.
func New(jobs VideoJobs, fetcher AssetFetcher, credentials credential.Provider, store assets.Store, params VideoParams, opts ...Option) *Poller {
	p := &Poller{
		jobs:        jobs,
		fetcher:     fetcher,
		credentials: credentials,
		store:       store,
		params:      params,
		policy:      DefaultPolicy(),
		sleep:       sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one video job and returns the local asset handle.
func (p *Poller) Run(ctx context.Context, prompt string, onProgress generation.ProgressFunc) (string, error) {
	progress := func(status string) {
		if onProgress != nil {
			onProgress(status)
		}
	}

	if !p.credentials.HasCredential(ctx) {
		logger.ServiceOperation("video", "credential_missing")
		if err := p.credentials.RequestCredential(ctx); err != nil {
			return "", err
		}
	}

	op, err := p.jobs.SubmitVideoJob(ctx, p.credentials.Credential(), prompt, p.params)
	if err != nil {
		return "", generation.Wrap("video.submit", err)
	}
	if op == nil {
		return "", generation.NewError(generation.KindMalformed, "video.submit", "remote returned no operation", nil)
	}

	logger.ServiceOperation("video", "submitted", "operation", op.Name, "model", p.params.Model)
	progress(StatusInitializing)

	reauths := 0
	for !op.Done {
		if err := ctx.Err(); err != nil {
			return "", generation.Wrap("video.poll", err)
		}
		if err := p.sleep(ctx, p.policy.Interval); err != nil {
			return "", generation.Wrap("video.poll", err)
		}

		progress(StatusGenerating)

		next, err := p.jobs.PollVideoJob(ctx, p.credentials.Credential(), op)
		if err != nil {
			if !errors.Is(err, generation.ErrOperationNotFound) {
				return "", generation.Wrap("video.poll", err)
			}

			reauths++
			logger.Warn("Video operation credential expired", "operation", op.Name, "reauthorization", reauths)
			if reauths > p.policy.MaxReauthorizations {
				return "", generation.NewError(generation.KindCredential, "video.poll",
					fmt.Sprintf("%s after %d attempts", generation.ErrReauthExhausted.Error(), p.policy.MaxReauthorizations),
					generation.ErrReauthExhausted)
			}

			progress(StatusExpired)
			if err := p.credentials.RequestCredential(ctx); err != nil {
				return "", err
			}
			if err := p.sleep(ctx, p.policy.backoff(reauths)); err != nil {
				return "", generation.Wrap("video.poll", err)
			}
			continue
		}
		if next == nil {
			return "", generation.NewError(generation.KindMalformed, "video.poll", "remote returned no operation", nil)
		}
		op = next
	}

	if op.ErrorMessage != "" {
		return "", generation.NewError(generation.KindRemote, "video.poll", op.ErrorMessage, nil)
	}
	if op.VideoURI == "" {
		return "", generation.NewError(generation.KindNoResult, "video.poll", "", generation.ErrNoResult)
	}

	asset, err := p.fetcher.FetchAsset(ctx, op.VideoURI, p.credentials.Credential())
	if err != nil {
		return "", generation.Wrap("video.fetch", err)
	}
	if asset == nil || len(asset.Data) == 0 {
		return "", generation.NewError(generation.KindMalformed, "video.fetch", "downloaded video is empty", nil)
	}

	mimeType := asset.MIMEType
	if mimeType == "" {
		mimeType = "video/mp4"
	}
	handle, err := p.store.Put(mimeType, asset.Data)
	if err != nil {
		return "", generation.NewError(generation.KindTransport, "video.store", "failed to store video", err)
	}

	logger.ServiceOperation("video", "completed", "operation", op.Name, "reauthorizations", reauths, "bytes", len(asset.Data))
	return handle, nil
}
