package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediachat/internal/assets"
	"mediachat/internal/credential"
	"mediachat/internal/generation"
)

// pollStep scripts one poll response.
type pollStep struct {
	op  *Operation
	err error
}

type scriptedJobs struct {
	mu          sync.Mutex
	submitErr   error
	steps       []pollStep
	polls       int
	credentials []string
}

func (s *scriptedJobs) SubmitVideoJob(_ context.Context, cred string, prompt string, _ VideoParams) (*Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials = append(s.credentials, cred)
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	return &Operation{Name: "operations/" + prompt}, nil
}

func (s *scriptedJobs) PollVideoJob(_ context.Context, cred string, op *Operation) (*Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials = append(s.credentials, cred)
	if s.polls >= len(s.steps) {
		return nil, fmt.Errorf("unexpected poll %d", s.polls)
	}
	step := s.steps[s.polls]
	s.polls++
	if step.op != nil && step.op.Name == "" {
		step.op.Name = op.Name
	}
	return step.op, step.err
}

type fakeFetcher struct {
	asset *Asset
	err   error
	uris  []string
}

func (f *fakeFetcher) FetchAsset(_ context.Context, uri string, _ string) (*Asset, error) {
	f.uris = append(f.uris, uri)
	return f.asset, f.err
}

func pending() pollStep { return pollStep{op: &Operation{}} }

func expired() pollStep {
	return pollStep{err: fmt.Errorf("poll: %w", generation.ErrOperationNotFound)}
}

func finished(uri string) pollStep { return pollStep{op: &Operation{Done: true, VideoURI: uri}} }

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

type progressRecorder struct {
	mu       sync.Mutex
	statuses []string
}

func (r *progressRecorder) record(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func keySequence(keys ...string) credential.Selector {
	i := 0
	return credential.SelectorFunc(func(context.Context) (string, error) {
		if i >= len(keys) {
			return "", errors.New("no more keys")
		}
		k := keys[i]
		i++
		return k, nil
	})
}

func TestRun_CompletesAfterOneReauthorization(t *testing.T) {
	jobs := &scriptedJobs{steps: []pollStep{pending(), expired(), pending(), finished("https://remote/video.mp4")}}
	fetcher := &fakeFetcher{asset: &Asset{MIMEType: "video/mp4", Data: []byte("mp4")}}
	creds := credential.NewManager("key-1", keySequence("key-2"))
	store := assets.NewMemoryStore("/assets/", 4)
	rec := &progressRecorder{}

	p := New(jobs, fetcher, creds, store, VideoParams{Model: "veo"}, WithSleep(noSleep))
	handle, err := p.Run(context.Background(), "a cat", rec.record)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(handle, "/assets/"))
	asset, err := store.Get(strings.TrimPrefix(handle, "/assets/"))
	require.NoError(t, err)
	assert.Equal(t, []byte("mp4"), asset.Data)

	assert.Equal(t, 1, creds.Requests(), "exactly one re-authorization")
	assert.Equal(t, 4, jobs.polls)
	assert.Equal(t, []string{"key-1", "key-1", "key-1", "key-2", "key-2"}, jobs.credentials)
	assert.Equal(t, []string{"https://remote/video.mp4"}, fetcher.uris)

	assert.Equal(t, StatusInitializing, rec.statuses[0])
	assert.Contains(t, rec.statuses, StatusExpired)
	assert.Equal(t, StatusGenerating, rec.statuses[len(rec.statuses)-1])
}

func TestRun_DoneWithoutURI(t *testing.T) {
	jobs := &scriptedJobs{steps: []pollStep{pending(), finished("")}}
	fetcher := &fakeFetcher{}
	p := New(jobs, fetcher, credential.NewManager("key", nil), assets.NewMemoryStore("", 1), VideoParams{}, WithSleep(noSleep))

	_, err := p.Run(context.Background(), "x", nil)
	require.Error(t, err)
	assert.Equal(t, generation.KindNoResult, generation.KindOf(err))
	assert.ErrorIs(t, err, generation.ErrNoResult)
	assert.Equal(t, "Error: video generation failed to return a URI", generation.UserMessage(err))
	assert.Empty(t, fetcher.uris)
}

func TestRun_DoneWithRemoteError(t *testing.T) {
	jobs := &scriptedJobs{steps: []pollStep{{op: &Operation{Done: true, ErrorMessage: "safety filter"}}}}
	p := New(jobs, &fakeFetcher{}, credential.NewManager("key", nil), assets.NewMemoryStore("", 1), VideoParams{}, WithSleep(noSleep))

	_, err := p.Run(context.Background(), "x", nil)
	assert.Equal(t, generation.KindRemote, generation.KindOf(err))
	assert.ErrorContains(t, err, "safety filter")
}

func TestRun_RequestsCredentialWhenMissing(t *testing.T) {
	jobs := &scriptedJobs{steps: []pollStep{finished("uri")}}
	fetcher := &fakeFetcher{asset: &Asset{Data: []byte("v")}}
	creds := credential.NewManager("", keySequence("picked"))

	p := New(jobs, fetcher, creds, assets.NewMemoryStore("", 1), VideoParams{}, WithSleep(noSleep))
	handle, err := p.Run(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, handle)
	assert.Equal(t, "picked", jobs.credentials[0])
	assert.Equal(t, 1, creds.Requests())
}

func TestRun_CredentialDeclined(t *testing.T) {
	jobs := &scriptedJobs{}
	p := New(jobs, &fakeFetcher{}, credential.NewManager("", nil), assets.NewMemoryStore("", 1), VideoParams{}, WithSleep(noSleep))

	_, err := p.Run(context.Background(), "x", nil)
	assert.Equal(t, generation.KindCredential, generation.KindOf(err))
	assert.Empty(t, jobs.credentials, "nothing is submitted without a credential")
}

func TestRun_ReauthorizationExhausted(t *testing.T) {
	jobs := &scriptedJobs{steps: []pollStep{expired(), expired(), expired()}}
	creds := credential.NewManager("key", keySequence("a", "b", "c"))
	policy := Policy{Interval: time.Millisecond, MaxReauthorizations: 2}

	p := New(jobs, &fakeFetcher{}, creds, assets.NewMemoryStore("", 1), VideoParams{}, WithPolicy(policy), WithSleep(noSleep))
	_, err := p.Run(context.Background(), "x", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, generation.ErrReauthExhausted)
	assert.Equal(t, generation.KindCredential, generation.KindOf(err))
	assert.Equal(t, 2, creds.Requests())
}

func TestRun_OtherPollErrorIsFatal(t *testing.T) {
	jobs := &scriptedJobs{steps: []pollStep{{err: errors.New("connection reset")}}}
	creds := credential.NewManager("key", keySequence("unused"))

	p := New(jobs, &fakeFetcher{}, creds, assets.NewMemoryStore("", 1), VideoParams{}, WithSleep(noSleep))
	_, err := p.Run(context.Background(), "x", nil)
	assert.Equal(t, generation.KindTransport, generation.KindOf(err))
	assert.Equal(t, 0, creds.Requests())
}

func TestRun_SubmitError(t *testing.T) {
	jobs := &scriptedJobs{submitErr: errors.New("quota")}
	p := New(jobs, &fakeFetcher{}, credential.NewManager("key", nil), assets.NewMemoryStore("", 1), VideoParams{}, WithSleep(noSleep))

	_, err := p.Run(context.Background(), "x", nil)
	assert.ErrorContains(t, err, "quota")
}

func TestRun_FetchError(t *testing.T) {
	jobs := &scriptedJobs{steps: []pollStep{finished("uri")}}
	fetcher := &fakeFetcher{err: errors.New("403")}
	p := New(jobs, fetcher, credential.NewManager("key", nil), assets.NewMemoryStore("", 1), VideoParams{}, WithSleep(noSleep))

	_, err := p.Run(context.Background(), "x", nil)
	assert.Equal(t, generation.KindTransport, generation.KindOf(err))
}

func TestRun_CancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	jobs := &scriptedJobs{steps: []pollStep{pending(), pending()}}

	p := New(jobs, &fakeFetcher{}, credential.NewManager("key", nil), assets.NewMemoryStore("", 1), VideoParams{},
		WithPolicy(Policy{Interval: time.Hour}))

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Run(ctx, "x", nil)
		errCh <- err
	}()
	cancel()

	select {
	case err := <-errCh:
		assert.Equal(t, generation.KindCancelled, generation.KindOf(err))
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop after cancellation")
	}
}

func TestPolicy_Backoff(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 2*time.Second, p.backoff(1))
	assert.Equal(t, 4*time.Second, p.backoff(2))
	assert.Equal(t, 8*time.Second, p.backoff(3))
	assert.Equal(t, 30*time.Second, p.backoff(10))

	assert.Equal(t, time.Duration(0), Policy{}.backoff(3))
}
