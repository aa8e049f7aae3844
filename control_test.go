package assetcache

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/piplinepro/asset-cache/cache"
)

func postMessage(handler http.Handler, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("POST", DefaultControlPrefix+"/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(rr, req)
	return rr
}

func listPartitions(t *testing.T, handler http.Handler) []string {
	t.Helper()
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", DefaultControlPrefix+"/partitions", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("Partition listing status is %d", rr.Code)
	}
	var names []string
	if err := json.Unmarshal(rr.Body.Bytes(), &names); err != nil {
		t.Fatalf("Partition listing body is %s", rr.Body.String())
	}
	return names
}

func TestClearCachesMessage(t *testing.T) {
	origin := newCountingOrigin(nil)
	defer origin.server.Close()
	store := cache.NewMemoryStore()
	wk := activeTestWorker(t, origin.server, Config{Store: store})
	handler := wk.Handler("")

	get(wk, "/static/css/app.css")
	if names := listPartitions(t, handler); len(names) == 0 {
		t.Fatal("Expected partitions before purge")
	}

	rr := postMessage(handler, `{"type":"CLEAR_CACHES"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("Status is %d", rr.Code)
	}
	if names := listPartitions(t, handler); len(names) != 0 {
		t.Fatalf("Partitions after purge: %v", names)
	}
}

func TestUnknownMessageIgnored(t *testing.T) {
	origin := newCountingOrigin(nil)
	defer origin.server.Close()
	store := cache.NewMemoryStore()
	wk := activeTestWorker(t, origin.server, Config{Store: store})
	handler := wk.Handler("")

	before := listPartitions(t, handler)
	rr := postMessage(handler, `{"type":"DO_SOMETHING_ELSE"}`)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("Status is %d", rr.Code)
	}
	after := listPartitions(t, handler)
	if len(before) != len(after) {
		t.Fatalf("Partitions changed from %v to %v", before, after)
	}
}

func TestInvalidMessageRejected(t *testing.T) {
	origin := newCountingOrigin(nil)
	defer origin.server.Close()
	wk := activeTestWorker(t, origin.server, Config{})

	rr := postMessage(wk.Handler(""), "not json")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Status is %d", rr.Code)
	}
}

func TestSkipWaitingPromotesWaitingWorker(t *testing.T) {
	origin := newCountingOrigin(nil)
	defer origin.server.Close()
	wk := newTestWorker(t, origin.server, Config{WaitForPromotion: true})
	handler := wk.Handler("")

	done := make(chan error, 1)
	go func() {
		done <- wk.Run(context.Background())
	}()
	waitForState(t, wk, StateWaiting)

	rr := postMessage(handler, `{"type":"SKIP_WAITING"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("Status is %d", rr.Code)
	}
	waitForState(t, wk, StateActive)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestControlRoutesNotProxied(t *testing.T) {
	origin := newCountingOrigin(nil)
	defer origin.server.Close()
	wk := activeTestWorker(t, origin.server, Config{})

	listPartitions(t, wk.Handler(""))
	if c := origin.count(DefaultControlPrefix + "/partitions"); c != 0 {
		t.Fatal("Control request reached the origin")
	}
}

func waitForState(t *testing.T, wk *Worker, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if wk.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("State is %s, want %s", wk.State(), want)
}
