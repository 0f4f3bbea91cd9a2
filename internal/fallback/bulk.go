// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package fallback

import (
	"context"
	"time"

	"github.com/tomtom215/killwatch/internal/metrics"
)

// ChunkError describes one bulk chunk that could not be fetched.
type ChunkError struct {
	Chunk   int     `json:"chunk"`
	Systems []int64 `json:"systems"`
	Error   string  `json:"error"`
}

// BulkResult is the outcome of BulkLoad. Partial success is normal.
type BulkResult struct {
	Loaded int          `json:"loaded"`
	Errors []ChunkError `json:"errors"`
}

// BulkLoad fetches kills from the last window for systems, or for the
// tracked systems when systems is empty, in chunks of BulkChunkSize.
// A failed chunk is recorded and the next chunk is attempted.
func (c *Coordinator) BulkLoad(ctx context.Context, window time.Duration, systems []int64) BulkResult {
	if len(systems) == 0 {
		systems = c.tracked.Load().Systems()
	}
	result := BulkResult{Errors: []ChunkError{}}
	since := c.now().Add(-window)

	chunks := chunkIDs(systems, c.opts.BulkChunkSize)
	c.logger.Info().
		Int("systems", len(systems)).
		Int("chunks", len(chunks)).
		Dur("window", window).
		Msg("Bulk load started")

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, ChunkError{Chunk: i, Systems: chunk, Error: err.Error()})
			metrics.BulkChunks.WithLabelValues("error").Inc()
			continue
		}

		bySystem, err := c.source.BulkSystemKills(ctx, chunk, since, c.opts.BulkKillLimit)
		if err != nil {
			result.Errors = append(result.Errors, ChunkError{Chunk: i, Systems: chunk, Error: err.Error()})
			metrics.BulkChunks.WithLabelValues("error").Inc()
			c.logger.Warn().Err(err).Int("chunk", i).Int("systems", len(chunk)).Msg("Bulk chunk failed")
			continue
		}
		metrics.BulkChunks.WithLabelValues("ok").Inc()

		for _, id := range chunk {
			for _, k := range bySystem[id] {
				metrics.EventsReceived.WithLabelValues("bulk").Inc()
				c.sink(ctx, "bulk", k)
				result.Loaded++
			}
		}
	}

	c.logger.Info().
		Int("loaded", result.Loaded).
		Int("failed_chunks", len(result.Errors)).
		Msg("Bulk load finished")
	return result
}

func chunkIDs(ids []int64, size int) [][]int64 {
	if size <= 0 {
		size = len(ids)
	}
	var out [][]int64
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}
