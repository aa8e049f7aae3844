package assetcache

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/piplinepro/asset-cache/cache"
	serializer "github.com/piplinepro/asset-cache/pkg/response-serializer"
)

// State is the lifecycle state of a worker.
type State int32

const (
	StateInstalling State = iota
	StateWaiting
	StateActivating
	StateActive
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateWaiting:
		return "waiting"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// State returns the current lifecycle state of the worker.
func (wk *Worker) State() State {
	return State(wk.state.Load())
}

// Run moves the worker through its lifecycle: install, optionally wait for
// promotion, then activate. Once Run returns without error the worker
// serves intercepted fetches until the process is superseded.
func (wk *Worker) Run(ctx context.Context) error {
	if err := wk.Install(ctx); err != nil {
		return err
	}
	if wk.wait {
		wk.log.Info().Msg("Installed, waiting for promotion")
		select {
		case <-wk.promote:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return wk.Activate(ctx)
}

// Install seeds the static partition with the application shell manifest.
// Install fails if any manifest path cannot be fetched from the origin.
func (wk *Worker) Install(ctx context.Context) error {
	wk.log.Info().Msgf("Installing, precaching %d shell assets", len(wk.manifest))
	for _, path := range wk.manifest {
		if err := wk.precache(ctx, path); err != nil {
			return fmt.Errorf("precache %s: %w", path, err)
		}
	}
	if wk.wait {
		wk.state.Store(int32(StateWaiting))
	}
	return nil
}

// SkipWaiting promotes a waiting worker to activation immediately,
// bypassing the default lifecycle.
func (wk *Worker) SkipWaiting() {
	wk.promoteOnce.Do(func() {
		close(wk.promote)
	})
}

// Activate deletes every cache partition left over from previous
// deployment generations and starts intercepting fetches. The sweep
// completes before any fetch is served from the new generation.
func (wk *Worker) Activate(ctx context.Context) error {
	wk.state.Store(int32(StateActivating))
	names, err := wk.store.Partitions()
	if err != nil {
		return fmt.Errorf("list partitions: %w", err)
	}
	for _, name := range names {
		if name == wk.staticPartition || name == wk.runtimePartition {
			continue
		}
		wk.log.Info().Str("partition", name).Msg("Deleting stale partition")
		if err := wk.store.DeletePartition(name); err != nil {
			return fmt.Errorf("delete partition %s: %w", name, err)
		}
	}
	wk.state.Store(int32(StateActive))
	wk.log.Info().Msg("Active, claiming all requests")
	return nil
}

func (wk *Worker) precache(ctx context.Context, path string) error {
	uri := wk.originURL.String() + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return err
	}
	res, err := wk.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", res.StatusCode)
	}
	bts, err := serializer.ResponseToBytes(res)
	if err != nil {
		return err
	}
	key := requestKey(http.MethodGet, path)
	wk.log.Trace().Str("key", key).Msg("Precaching shell asset")
	return wk.store.Put(wk.staticPartition, key, cache.Entry{
		Key:        key,
		ReceivedAt: time.Now(),
		Bytes:      bts,
	})
}
