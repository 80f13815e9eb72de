package batch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"procurement-backend/internal/store"
)

// recordingStore counts commits and fails the commit with index failAt.
type recordingStore struct {
	store.Store
	sizes  []int
	failAt int
	calls  int
}

var errBoom = errors.New("boom")

func (r *recordingStore) BatchCommit(ctx context.Context, muts []store.Mutation) error {
	idx := r.calls
	r.calls++
	if idx == r.failAt {
		return errBoom
	}
	r.sizes = append(r.sizes, len(muts))
	return r.Store.BatchCommit(ctx, muts)
}

func newRecording(failAt int) *recordingStore {
	return &recordingStore{Store: store.NewMemory(0, nil, nil), failAt: failAt}
}

func mutations(n int) []store.Mutation {
	out := make([]store.Mutation, n)
	for i := range out {
		out[i] = store.Set(store.Path{Collection: "items", ID: fmt.Sprintf("i-%04d", i)}, map[string]any{"n": i})
	}
	return out
}

func TestCommitChunkedSplitsIntoCeilTransactions(t *testing.T) {
	rs := newRecording(-1)
	w := NewWriter(rs, 500, nil)

	res, err := w.CommitChunked(context.Background(), mutations(1200))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if res.TotalChunks != 3 || res.CommittedChunks != 3 || res.Committed != 1200 || !res.Complete() {
		t.Fatalf("unexpected result: %+v", res)
	}
	want := []int{500, 500, 200}
	for i := range want {
		if rs.sizes[i] != want[i] {
			t.Fatalf("chunk %d size: want=%d got=%d", i, want[i], rs.sizes[i])
		}
	}
}

func TestCommitChunkedStopsAtFirstFailure(t *testing.T) {
	rs := newRecording(1)
	w := NewWriter(rs, 2, nil)
	muts := mutations(5)

	res, err := w.CommitChunked(context.Background(), muts)
	var cerr *ChunkCommitError
	if !errors.As(err, &cerr) || cerr.Index != 1 || !errors.Is(err, errBoom) {
		t.Fatalf("want ChunkCommitError at 1, got %v", err)
	}
	if res.FailedAtIndex != 1 || res.CommittedChunks != 1 || res.Committed != 2 || res.TotalChunks != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if rs.calls != 2 {
		t.Fatalf("later chunks must not be attempted, calls=%d", rs.calls)
	}

	ctx := context.Background()
	for i, m := range muts {
		_, err := rs.Get(ctx, m.Path)
		if i < 2 && err != nil {
			t.Fatalf("chunk 0 doc %d should be durable: %v", i, err)
		}
		if i >= 2 && !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("doc %d should not exist, err=%v", i, err)
		}
	}

	res, err = w.Resume(ctx, muts, res.FailedAtIndex)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if res.CommittedChunks != 3 || res.Committed != 5 || !res.Complete() {
		t.Fatalf("unexpected resume result: %+v", res)
	}
	docs, _ := rs.Query(ctx, "items")
	if len(docs) != 5 {
		t.Fatalf("want 5 docs after resume, got %d", len(docs))
	}
}

func TestNonPositiveChunkSizeMeansSingleTransaction(t *testing.T) {
	rs := newRecording(-1)
	w := NewWriter(rs, 0, nil)

	res, err := w.CommitChunked(context.Background(), mutations(1200))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if res.TotalChunks != 1 || len(rs.sizes) != 1 || rs.sizes[0] != 1200 {
		t.Fatalf("unexpected chunking: %+v sizes=%v", res, rs.sizes)
	}
}

func TestChunkSizeCappedByStore(t *testing.T) {
	w := NewWriter(store.NewMemory(100, nil, nil), 500, nil)
	if w.ChunkSize() != 100 {
		t.Fatalf("want chunk size capped at 100, got %d", w.ChunkSize())
	}
}

func TestEmptyInputCommitsNothing(t *testing.T) {
	rs := newRecording(-1)
	res, err := NewWriter(rs, 10, nil).CommitChunked(context.Background(), nil)
	if err != nil || res.TotalChunks != 0 || rs.calls != 0 {
		t.Fatalf("unexpected: res=%+v err=%v calls=%d", res, err, rs.calls)
	}
}
