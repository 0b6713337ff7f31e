// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_reassembly

import (
	"sync"
	"time"

	internal_sink "github.com/rapidaai/api/device-api/internal/sink"
	"github.com/rapidaai/pkg/commons"
)

type sessionState int

const (
	stateActive sessionState = iota
	stateStopping
	stateFinalized
	stateAbandoned
)

// dropLogInterval caps how often a session logs reorder-buffer drops so a
// runaway device cannot flood the log.
const dropLogInterval = time.Second

// recordingSink is the slice of the sink a session drives. Satisfied by
// *internal_sink.Sink.
type recordingSink interface {
	Append(payload []byte) error
	BytesWritten() int64
	Finalize(header []byte) (string, error)
	Abort()
}

var _ recordingSink = (*internal_sink.Sink)(nil)

// session is one in-progress recording: format parameters, the bounded
// reorder buffer, the sequential sink and progress counters. All fields are
// guarded by mu; the engine never touches them without holding it.
type session struct {
	mu sync.Mutex

	recordingID string
	deviceID    string

	sampleRate   uint32
	bitDepth     uint16
	channelCount uint16

	// chunkSize is learned from the first chunk received and used to
	// synthesize silence during tail-fill. Zero until the first chunk.
	chunkSize int

	// nextExpected is the lowest chunk index not yet committed to the sink.
	nextExpected uint32

	// reorder holds chunks that arrived ahead of nextExpected, keyed by
	// index. Bounded by the engine's reorder capacity.
	reorder map[uint32][]byte

	sink         recordingSink
	bytesWritten int64

	chunksWritten     uint64
	chunksSynthesized uint64
	chunksDropped     uint64
	writeErrors       uint64

	lastActivity time.Time
	lastDropLog  time.Time

	state sessionState
}

// ============================================================================
// Chunk admission
// ============================================================================

// admit classifies one chunk against nextExpected and either commits it,
// buffers it, or discards it. Caller holds s.mu.
func (s *session) admit(index uint32, payload []byte, capacity int, now time.Time, logger commons.Logger) {
	if s.state != stateActive {
		// A stop or abandonment already owns this session; the chunk is a
		// straggler racing the teardown.
		return
	}

	// Receipt counts as liveness even when the chunk is discarded.
	s.lastActivity = now

	if s.chunkSize == 0 && len(payload) > 0 {
		s.chunkSize = len(payload)
	}

	switch {
	case index < s.nextExpected:
		// Late duplicate or retransmission of committed data.

	case index == s.nextExpected:
		s.commit(payload, logger)
		s.drain(logger)

	default: // index > s.nextExpected
		if _, buffered := s.reorder[index]; buffered {
			return
		}
		if len(s.reorder) >= capacity {
			s.chunksDropped++
			if now.Sub(s.lastDropLog) >= dropLogInterval {
				s.lastDropLog = now
				logger.Warnf("recording %s: reorder buffer full (%d entries), dropping chunk %d (dropped so far: %d)",
					s.recordingID, len(s.reorder), index, s.chunksDropped)
			}
			return
		}
		buf := make([]byte, len(payload))
		copy(buf, payload)
		s.reorder[index] = buf
	}
}

// commit appends one chunk to the sink and advances the expected index.
// A failed write is counted and skipped, never retried; the gap surfaces in
// the completion's write_errors. chunks_written counts only bytes that
// actually reached the container. Caller holds s.mu.
func (s *session) commit(payload []byte, logger commons.Logger) {
	if err := s.sink.Append(payload); err != nil {
		s.writeErrors++
		logger.Errorf("recording %s: sink write failed at chunk %d: %v", s.recordingID, s.nextExpected, err)
	} else {
		s.bytesWritten += int64(len(payload))
		s.chunksWritten++
	}
	s.nextExpected++
}

// drain flushes the contiguous run now unblocked at nextExpected. Caller
// holds s.mu.
func (s *session) drain(logger commons.Logger) {
	for {
		payload, ok := s.reorder[s.nextExpected]
		if !ok {
			return
		}
		delete(s.reorder, s.nextExpected)
		s.commit(payload, logger)
	}
}

// ============================================================================
// Finalization
// ============================================================================

// tailFill advances the session to reportedTotal chunks, writing buffered
// chunks where present and synthesized silence everywhere else. The session
// may end up past reportedTotal already; in that case nothing is written and
// nothing is truncated. Caller holds s.mu.
func (s *session) tailFill(reportedTotal uint32, fallbackChunkSize int, logger commons.Logger) {
	silenceLen := s.chunkSize
	if silenceLen == 0 {
		silenceLen = fallbackChunkSize
	}
	var silence []byte

	for s.nextExpected < reportedTotal {
		if payload, ok := s.reorder[s.nextExpected]; ok {
			delete(s.reorder, s.nextExpected)
			s.commit(payload, logger)
			continue
		}
		if silence == nil {
			silence = make([]byte, silenceLen)
		}
		if err := s.sink.Append(silence); err != nil {
			s.writeErrors++
			logger.Errorf("recording %s: silence write failed at chunk %d: %v", s.recordingID, s.nextExpected, err)
		} else {
			s.bytesWritten += int64(silenceLen)
			s.chunksSynthesized++
		}
		s.nextExpected++
	}

	// Anything still buffered is beyond the reported total and obsolete.
	s.reorder = nil
}

// byteRate returns sample_rate × channels × bytes_per_sample for the
// session's format.
func (s *session) byteRate() int64 {
	return int64(s.sampleRate) * int64(s.channelCount) * int64(s.bitDepth/8)
}
