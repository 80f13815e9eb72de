// Package batch commits large mutation sets as a sequence of bounded store
// transactions.
package batch

import (
	"context"
	"fmt"

	"procurement-backend/internal/logger"
	"procurement-backend/internal/store"
)

// DefaultChunkSize matches the per-transaction operation limit of the
// document store the data was first written to.
const DefaultChunkSize = 500

// Result describes how far a chunked commit got.
type Result struct {
	TotalChunks     int `json:"totalChunks"`
	CommittedChunks int `json:"committedChunks"`
	// Mutations durably written, counting every committed chunk.
	Committed int `json:"committed"`
	// Index of the first chunk that failed, -1 when everything committed.
	FailedAtIndex int `json:"failedAtIndex"`
}

// Complete reports whether every chunk committed.
func (r Result) Complete() bool { return r.FailedAtIndex < 0 }

// ChunkCommitError: chunk Index failed, chunks before it are durable and
// chunks after it were never attempted.
type ChunkCommitError struct {
	Index int
	Err   error
}

func (e *ChunkCommitError) Error() string {
	return fmt.Sprintf("chunk %d commit failed: %v", e.Index, e.Err)
}

func (e *ChunkCommitError) Unwrap() error { return e.Err }

type Writer struct {
	store     store.Store
	chunkSize int
	log       *logger.Logger
}

// NewWriter: chunkSize <= 0 means no limit, everything goes in one transaction.
// The size is capped at the store's own MaxBatchSize.
func NewWriter(s store.Store, chunkSize int, log *logger.Logger) *Writer {
	if max := s.MaxBatchSize(); max > 0 && (chunkSize <= 0 || chunkSize > max) {
		chunkSize = max
	}
	return &Writer{
		store:     s,
		chunkSize: chunkSize,
		log:       logger.OrNop(log).With("service", "BatchWriter"),
	}
}

func (w *Writer) ChunkSize() int { return w.chunkSize }

// Chunks splits mutations into consecutive groups of at most size.
func Chunks(mutations []store.Mutation, size int) [][]store.Mutation {
	if len(mutations) == 0 {
		return nil
	}
	if size <= 0 {
		return [][]store.Mutation{mutations}
	}
	out := make([][]store.Mutation, 0, (len(mutations)+size-1)/size)
	for start := 0; start < len(mutations); start += size {
		end := start + size
		if end > len(mutations) {
			end = len(mutations)
		}
		out = append(out, mutations[start:end])
	}
	return out
}

// CommitChunked commits the chunks in order and stops at the first failure.
// There is no rollback of earlier chunks.
func (w *Writer) CommitChunked(ctx context.Context, mutations []store.Mutation) (Result, error) {
	return w.Resume(ctx, mutations, 0)
}

// Resume commits chunks fromChunk..n of mutations, for retrying the suffix
// a previous CommitChunked left unfinished. Chunk indexes in the result and
// error are absolute.
func (w *Writer) Resume(ctx context.Context, mutations []store.Mutation, fromChunk int) (Result, error) {
	chunks := Chunks(mutations, w.chunkSize)
	res := Result{TotalChunks: len(chunks), FailedAtIndex: -1}
	if fromChunk < 0 || (fromChunk > 0 && fromChunk >= len(chunks)) {
		return res, fmt.Errorf("resume from chunk %d: out of range (%d chunks)", fromChunk, len(chunks))
	}

	res.CommittedChunks = fromChunk
	for i := 0; i < fromChunk; i++ {
		res.Committed += len(chunks[i])
	}

	for i := fromChunk; i < len(chunks); i++ {
		if err := ctx.Err(); err != nil {
			res.FailedAtIndex = i
			return res, &ChunkCommitError{Index: i, Err: err}
		}
		if err := w.store.BatchCommit(ctx, chunks[i]); err != nil {
			res.FailedAtIndex = i
			w.log.Warn("chunk commit failed",
				"chunk", i, "total_chunks", len(chunks), "committed", res.Committed, "error", err)
			return res, &ChunkCommitError{Index: i, Err: err}
		}
		res.CommittedChunks++
		res.Committed += len(chunks[i])
		w.log.Debug("chunk committed", "chunk", i, "total_chunks", len(chunks), "size", len(chunks[i]))
	}
	return res, nil
}
