package pubmed

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// scriptedFetch records every batch and serves payloads from a fixed map.
type scriptedFetch struct {
	payloads map[string][]byte
	batches  [][]string
	err      error
}

func (f *scriptedFetch) fetch(_ context.Context, keys []string) (map[string][]byte, error) {
	batch := append([]string(nil), keys...)
	f.batches = append(f.batches, batch)
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string][]byte)
	for _, k := range keys {
		if v, ok := f.payloads[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func citePayloads(keys ...string) map[string][]byte {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		out[k] = []byte(fmt.Sprintf(`{"PMID":%q}`, k))
	}
	return out
}

func newTestResolver(store *Store, fetch *scriptedFetch) *Resolver {
	return &Resolver{
		Store:    store,
		Audit:    store.Audit(),
		Category: CategoryCite,
		Op:       OpCite,
		Fetch:    fetch.fetch,
	}
}

func TestResolveDedupesAndPreservesOrder(t *testing.T) {
	store := newTestStore(t)
	fetch := &scriptedFetch{payloads: citePayloads("1", "2", "3")}
	r := newTestResolver(store, fetch)

	res, err := r.Resolve(context.Background(), []string{"2", "1", "2", "3", "1"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []string{"2", "1", "3"}
	if len(res.Keys) != len(want) {
		t.Fatalf("keys = %v, want %v", res.Keys, want)
	}
	for i := range want {
		if res.Keys[i] != want[i] {
			t.Fatalf("keys = %v, want %v", res.Keys, want)
		}
	}
	if len(fetch.batches) != 1 || len(fetch.batches[0]) != 3 {
		t.Errorf("batches = %v, want one batch of 3 distinct keys", fetch.batches)
	}
	if res.Cached != 0 || res.Fetched != 3 {
		t.Errorf("cached/fetched = %d/%d, want 0/3", res.Cached, res.Fetched)
	}
}

func TestResolveBatchesAtLimit(t *testing.T) {
	store := newTestStore(t)
	fetch := &scriptedFetch{payloads: citePayloads("1", "2", "3", "4", "5")}
	r := newTestResolver(store, fetch)
	r.BatchSize = 2

	if _, err := r.Resolve(context.Background(), []string{"1", "2", "3", "4", "5"}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(fetch.batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(fetch.batches))
	}
	for i, b := range fetch.batches {
		if len(b) > 2 {
			t.Errorf("batch %d has %d keys, exceeds limit", i, len(b))
		}
	}
}

func TestResolveSecondCallFullyCached(t *testing.T) {
	store := newTestStore(t)
	fetch := &scriptedFetch{payloads: citePayloads("1", "2")}
	r := newTestResolver(store, fetch)

	if _, err := r.Resolve(context.Background(), []string{"1", "2"}); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	res, err := r.Resolve(context.Background(), []string{"1", "2"})
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if len(fetch.batches) != 1 {
		t.Errorf("second resolve hit the network: %v", fetch.batches)
	}
	if res.Cached != 2 || res.Fetched != 0 {
		t.Errorf("cached/fetched = %d/%d, want 2/0", res.Cached, res.Fetched)
	}
}

func TestResolveOverlappingRequests(t *testing.T) {
	store := newTestStore(t)
	fetch := &scriptedFetch{payloads: citePayloads("10", "20", "30", "40")}
	r := newTestResolver(store, fetch)

	if _, err := r.Resolve(context.Background(), []string{"10", "20", "30"}); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	res, err := r.Resolve(context.Background(), []string{"20", "30", "40"})
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}

	// Only the novel key goes to the network.
	if len(fetch.batches) != 2 {
		t.Fatalf("batches = %v, want 2", fetch.batches)
	}
	second := fetch.batches[1]
	if len(second) != 1 || second[0] != "40" {
		t.Errorf("second batch = %v, want just [40]", second)
	}
	if res.Cached != 2 || res.Fetched != 1 {
		t.Errorf("cached/fetched = %d/%d, want 2/1", res.Cached, res.Fetched)
	}
	for _, k := range []string{"20", "30", "40"} {
		if _, ok := res.Payloads[k]; !ok {
			t.Errorf("missing payload for %s", k)
		}
	}

	// Both operations are on the audit trail with exact counts.
	events, _, err := store.Audit().ReadEvents()
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	var cites []Event
	for _, e := range events {
		if e.Op == OpCite {
			cites = append(cites, e)
		}
	}
	if len(cites) != 2 {
		t.Fatalf("got %d cite events, want 2", len(cites))
	}
	if cites[0].Requested != 3 || cites[0].Cached != 0 || cites[0].Fetched != 3 {
		t.Errorf("first event = %+v", cites[0])
	}
	if cites[1].Requested != 3 || cites[1].Cached != 2 || cites[1].Fetched != 1 {
		t.Errorf("second event = %+v", cites[1])
	}
}

func TestResolvePartialBatchFailure(t *testing.T) {
	store := newTestStore(t)
	boom := errors.New("upstream 500")
	calls := 0
	r := &Resolver{
		Store:     store,
		Audit:     store.Audit(),
		Category:  CategoryCite,
		Op:        OpCite,
		BatchSize: 2,
		Fetch: func(_ context.Context, keys []string) (map[string][]byte, error) {
			calls++
			if calls == 1 {
				return nil, boom
			}
			out := make(map[string][]byte)
			for _, k := range keys {
				out[k] = []byte(fmt.Sprintf(`{"PMID":%q}`, k))
			}
			return out, nil
		},
	}

	res, err := r.Resolve(context.Background(), []string{"1", "2", "3"})
	if err != nil {
		t.Fatalf("partial failure should not error: %v", err)
	}
	if len(res.Failed) != 2 {
		t.Errorf("failed = %v, want the first batch's 2 keys", res.Failed)
	}
	if _, ok := res.Payloads["3"]; !ok {
		t.Error("surviving batch's payload missing")
	}

	events, _, _ := store.Audit().ReadEvents()
	last := events[len(events)-1]
	if last.Failed != 2 || last.Fetched != 1 {
		t.Errorf("audit event = %+v", last)
	}
}

func TestResolveAllFailedErrors(t *testing.T) {
	store := newTestStore(t)
	fetch := &scriptedFetch{err: errors.New("network down")}
	r := newTestResolver(store, fetch)

	_, err := r.Resolve(context.Background(), []string{"1", "2"})
	if err == nil {
		t.Fatal("want error when nothing resolved")
	}
}

func TestResolveMissingKeysAreFailedNotFatal(t *testing.T) {
	store := newTestStore(t)
	fetch := &scriptedFetch{payloads: citePayloads("1")}
	r := newTestResolver(store, fetch)

	res, err := r.Resolve(context.Background(), []string{"1", "2"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.Failed) != 1 || res.Failed[0] != "2" {
		t.Errorf("failed = %v, want [2]", res.Failed)
	}
}

func TestResolveRefreshBypassesCache(t *testing.T) {
	store := newTestStore(t)
	if err := store.Put(CategoryCite, "1", []byte(`{"PMID":"1","stale":true}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	fetch := &scriptedFetch{payloads: citePayloads("1")}
	r := newTestResolver(store, fetch)
	r.Refresh = true

	res, err := r.Resolve(context.Background(), []string{"1"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(fetch.batches) != 1 {
		t.Fatal("refresh did not hit the network")
	}
	if string(res.Payloads["1"]) != `{"PMID":"1"}` {
		t.Errorf("payload = %s, want refreshed content", res.Payloads["1"])
	}
	if data, _ := store.Get(CategoryCite, "1"); string(data) != `{"PMID":"1"}` {
		t.Errorf("cache = %s, want overwritten entry", data)
	}
}

func TestResolveEmptyRequest(t *testing.T) {
	store := newTestStore(t)
	fetch := &scriptedFetch{}
	r := newTestResolver(store, fetch)

	res, err := r.Resolve(context.Background(), nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.Keys) != 0 || len(fetch.batches) != 0 {
		t.Errorf("empty request did work: %+v, %v", res, fetch.batches)
	}
}
