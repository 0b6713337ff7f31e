// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_reassembly

import (
	"context"
	"fmt"
	"sync"
	"time"

	internal_sink "github.com/rapidaai/api/device-api/internal/sink"
	internal_type "github.com/rapidaai/api/device-api/internal/type"
	internal_wave "github.com/rapidaai/api/device-api/internal/wave"
	"github.com/rapidaai/pkg/commons"
	"github.com/rapidaai/pkg/utils"
)

// ============================================================================
// Options
// ============================================================================

type engineOptions struct {
	recordingDir      string
	reorderCapacity   int
	maxSessions       int
	staleAfter        time.Duration
	sweepInterval     time.Duration
	fallbackChunkSize int
	reuseOnStart      bool
}

// Option configures the engine.
type Option func(*engineOptions)

// WithRecordingDir sets where partial and finished recordings are written.
func WithRecordingDir(dir string) Option {
	return func(o *engineOptions) { o.recordingDir = dir }
}

// WithReorderCapacity bounds how many early chunks a single recording may
// hold in memory. Chunks beyond the bound are dropped, not admitted.
func WithReorderCapacity(n int) Option {
	return func(o *engineOptions) { o.reorderCapacity = n }
}

// WithMaxSessions caps the number of concurrent recordings. New session
// creation beyond the cap is rejected.
func WithMaxSessions(n int) Option {
	return func(o *engineOptions) { o.maxSessions = n }
}

// WithStaleAfter sets how long a recording may go without any chunk before
// the sweep abandons it. Must be generous enough to ride out a normal
// network hiccup.
func WithStaleAfter(d time.Duration) Option {
	return func(o *engineOptions) { o.staleAfter = d }
}

// WithSweepInterval sets how often the staleness sweep runs.
func WithSweepInterval(d time.Duration) Option {
	return func(o *engineOptions) { o.sweepInterval = d }
}

// WithFallbackChunkSize sets the silence chunk length used during tail-fill
// when a recording ended before any chunk arrived to learn the size from.
func WithFallbackChunkSize(n int) Option {
	return func(o *engineOptions) { o.fallbackChunkSize = n }
}

// WithReuseExistingOnStart keeps the live session when a duplicate
// audio_start arrives instead of replacing it and discarding its data.
func WithReuseExistingOnStart(reuse bool) Option {
	return func(o *engineOptions) { o.reuseOnStart = reuse }
}

func defaultOptions() engineOptions {
	return engineOptions{
		recordingDir:      "recordings",
		reorderCapacity:   256,
		maxSessions:       512,
		staleAfter:        2 * time.Minute,
		sweepInterval:     30 * time.Second,
		fallbackChunkSize: 3200, // 100ms at 16kHz mono LINEAR16
	}
}

// ============================================================================
// Engine
// ============================================================================

// Engine reassembles arbitrarily-ordered device audio chunks into playable
// WAV containers, one session per recording id. It owns the session registry
// and the staleness sweep; the device transport only ever talks to the three
// Ingestor operations.
type Engine struct {
	logger    commons.Logger
	opts      engineOptions
	publisher internal_type.CompletionPublisher

	mu       sync.RWMutex
	sessions map[string]*session

	// clock is injectable for testing; defaults to time.Now.
	clock func() time.Time
}

var _ internal_type.Ingestor = (*Engine)(nil)

// New creates an engine. The publisher receives exactly one completion event
// per finalized recording; pass nil to discard them.
func New(logger commons.Logger, publisher internal_type.CompletionPublisher, opts ...Option) *Engine {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Engine{
		logger:    logger,
		opts:      options,
		publisher: publisher,
		sessions:  make(map[string]*session),
		clock:     time.Now,
	}
}

// ActiveSessions returns the number of live recordings.
func (e *Engine) ActiveSessions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sessions)
}

// ============================================================================
// Ingestor operations
// ============================================================================

// Start registers a recording. A duplicate start for a live id is resolved
// by the duplicate-start policy: by default the old session is replaced and
// its partial data discarded; with WithReuseExistingOnStart the existing
// session is kept.
func (e *Engine) Start(ctx context.Context, packet internal_type.StartPacket) error {
	if packet.RecordingID == "" {
		return fmt.Errorf("start without recording id from device %s", packet.DeviceID)
	}

	e.mu.Lock()
	existing := e.sessions[packet.RecordingID]
	if existing != nil {
		if e.opts.reuseOnStart {
			e.mu.Unlock()
			e.logger.Warnf("duplicate start for live recording %s (device %s): keeping existing session", packet.RecordingID, packet.DeviceID)
			return nil
		}
		delete(e.sessions, packet.RecordingID)
	}
	e.mu.Unlock()

	if existing != nil {
		existing.mu.Lock()
		existing.state = stateAbandoned
		existing.sink.Abort()
		existing.reorder = nil
		committed := existing.bytesWritten
		existing.mu.Unlock()
		e.logger.Warnf("duplicate start for live recording %s (device %s): replacing session and discarding %d committed bytes",
			packet.RecordingID, packet.DeviceID, committed)
	}

	_, err := e.createSession(packet)
	return err
}

// Ingest admits one chunk, lazily creating the session when the chunk beat
// its audio_start. Admission anomalies (late duplicates, over-capacity early
// chunks) are absorbed, not returned as errors.
func (e *Engine) Ingest(ctx context.Context, packet internal_type.ChunkPacket) error {
	if packet.RecordingID == "" {
		return fmt.Errorf("chunk %d without recording id", packet.Index)
	}
	if packet.DeclaredSize > 0 && packet.DeclaredSize != len(packet.Payload) {
		e.logger.Warnf("recording %s: chunk %d declared %d bytes but carried %d",
			packet.RecordingID, packet.Index, packet.DeclaredSize, len(packet.Payload))
	}

	s, err := e.lookupOrCreate(packet.RecordingID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.admit(packet.Index, packet.Payload, e.opts.reorderCapacity, e.clock(), e.logger)
	s.mu.Unlock()
	return nil
}

// Stop finalizes the recording: tail-fills up to the reported chunk count,
// closes the sink behind a WAV header, publishes the completion event and
// removes the session. Stop for an unknown id is a reported no-op failure.
//
// The session stays registered until finalization completes so a straggler
// chunk racing the stop hits the session's state guard instead of lazily
// re-creating a sink over the partial file being finalized.
func (e *Engine) Stop(ctx context.Context, packet internal_type.StopPacket) error {
	e.mu.RLock()
	s := e.sessions[packet.RecordingID]
	e.mu.RUnlock()
	if s == nil {
		return fmt.Errorf("stop for unknown recording %s", packet.RecordingID)
	}

	s.mu.Lock()
	if s.state != stateActive {
		s.mu.Unlock()
		return fmt.Errorf("stop for recording %s already finalizing", packet.RecordingID)
	}
	s.state = stateStopping

	if packet.TotalChunks < s.nextExpected {
		e.logger.Warnf("recording %s: device reported %d total chunks but %d already committed, finalizing as-is",
			s.recordingID, packet.TotalChunks, s.nextExpected)
	} else {
		s.tailFill(packet.TotalChunks, e.opts.fallbackChunkSize, e.logger)
	}

	header := internal_wave.Header(uint32(s.sink.BytesWritten()), s.sampleRate, s.bitDepth, s.channelCount)
	path, err := s.sink.Finalize(header)
	if err != nil {
		s.state = stateAbandoned
		s.mu.Unlock()
		e.remove(packet.RecordingID, s)
		return fmt.Errorf("finalizing recording %s: %w", s.recordingID, err)
	}
	s.state = stateFinalized

	duration := packet.DurationSeconds
	if duration <= 0 {
		if rate := s.byteRate(); rate > 0 {
			duration = float64(s.bytesWritten) / float64(rate)
		}
	}

	completion := internal_type.Completion{
		DeviceID:          s.deviceID,
		RecordingID:       s.recordingID,
		FilePath:          path,
		DurationSeconds:   duration,
		ByteSize:          s.bytesWritten,
		SampleRate:        s.sampleRate,
		BitDepth:          s.bitDepth,
		ChannelCount:      s.channelCount,
		ChunksWritten:     s.chunksWritten,
		ChunksSynthesized: s.chunksSynthesized,
		WriteErrors:       s.writeErrors,
	}
	s.mu.Unlock()
	e.remove(packet.RecordingID, s)

	e.logger.Infof("recording %s finalized: %s (%d bytes, %d written, %d synthesized, %d write errors)",
		completion.RecordingID, completion.FilePath, completion.ByteSize,
		completion.ChunksWritten, completion.ChunksSynthesized, completion.WriteErrors)

	if e.publisher != nil {
		if err := e.publisher.Publish(ctx, completion); err != nil {
			e.logger.Errorf("recording %s: completion publish failed: %v", completion.RecordingID, err)
		}
	}
	return nil
}

// ============================================================================
// Session registry
// ============================================================================

// remove drops the session from the registry only when it still owns the
// slot; a replacement started under the same id stays untouched.
func (e *Engine) remove(recordingID string, s *session) {
	e.mu.Lock()
	if e.sessions[recordingID] == s {
		delete(e.sessions, recordingID)
	}
	e.mu.Unlock()
}

func (e *Engine) lookupOrCreate(recordingID string) (*session, error) {
	e.mu.RLock()
	s := e.sessions[recordingID]
	e.mu.RUnlock()
	if s != nil {
		return s, nil
	}

	e.logger.Warnf("chunk arrived for unknown recording %s: creating session without start", recordingID)
	return e.createSession(internal_type.StartPacket{RecordingID: recordingID})
}

// createSession builds the sink outside the registry lock so one slow disk
// never stalls admission for other recordings, then inserts it. Losing the
// insert race aborts the fresh sink and uses the winner.
func (e *Engine) createSession(packet internal_type.StartPacket) (*session, error) {
	e.mu.RLock()
	count := len(e.sessions)
	e.mu.RUnlock()
	if count >= e.opts.maxSessions {
		return nil, fmt.Errorf("session limit reached (%d), rejecting recording %s", e.opts.maxSessions, packet.RecordingID)
	}

	sk, err := internal_sink.New(e.opts.recordingDir, packet.RecordingID)
	if err != nil {
		return nil, fmt.Errorf("creating sink for recording %s: %w", packet.RecordingID, err)
	}

	s := &session{
		recordingID:  packet.RecordingID,
		deviceID:     packet.DeviceID,
		sampleRate:   utils.FirstNonZero(packet.SampleRate, internal_type.DefaultSampleRate),
		bitDepth:     utils.FirstNonZero(packet.BitDepth, internal_type.DefaultBitDepth),
		channelCount: utils.FirstNonZero(packet.ChannelCount, internal_type.DefaultChannelCount),
		reorder:      make(map[uint32][]byte),
		sink:         sk,
		lastActivity: e.clock(),
	}

	e.mu.Lock()
	if winner, ok := e.sessions[packet.RecordingID]; ok {
		e.mu.Unlock()
		sk.Abort()
		return winner, nil
	}
	if len(e.sessions) >= e.opts.maxSessions {
		e.mu.Unlock()
		sk.Abort()
		return nil, fmt.Errorf("session limit reached (%d), rejecting recording %s", e.opts.maxSessions, packet.RecordingID)
	}
	e.sessions[packet.RecordingID] = s
	e.mu.Unlock()

	e.logger.Infof("recording %s started (device %s, %dHz %dbit %dch)",
		s.recordingID, s.deviceID, s.sampleRate, s.bitDepth, s.channelCount)
	return s, nil
}

// ============================================================================
// Staleness sweep
// ============================================================================

// Run drives the staleness sweep until ctx is cancelled. Intended to run in
// its own goroutine for the life of the service.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.opts.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.sweepOnce(e.clock())
		}
	}
}

// sweepOnce abandons every session whose last chunk is older than the
// staleness threshold: the partial sink is discarded (not padded — its total
// chunk count is unknown) and no completion event fires.
func (e *Engine) sweepOnce(now time.Time) int {
	cutoff := now.Add(-e.opts.staleAfter)

	e.mu.RLock()
	var stale []*session
	for _, s := range e.sessions {
		s.mu.Lock()
		if s.lastActivity.Before(cutoff) {
			stale = append(stale, s)
		}
		s.mu.Unlock()
	}
	e.mu.RUnlock()

	abandoned := 0
	for _, s := range stale {
		e.mu.Lock()
		// Re-check under the write lock: a stop may have raced the sweep,
		// either replacing the slot or holding the session in finalization.
		if e.sessions[s.recordingID] != s {
			e.mu.Unlock()
			continue
		}
		s.mu.Lock()
		if s.state != stateActive {
			s.mu.Unlock()
			e.mu.Unlock()
			continue
		}
		delete(e.sessions, s.recordingID)
		e.mu.Unlock()

		s.state = stateAbandoned
		s.sink.Abort()
		buffered := len(s.reorder)
		s.reorder = nil
		e.logger.Warnf("recording %s abandoned after %s of silence (device %s, %d chunks, %d bytes committed, %d buffered discarded)",
			s.recordingID, e.opts.staleAfter, s.deviceID, s.chunksWritten, s.bytesWritten, buffered)
		s.mu.Unlock()
		abandoned++
	}
	return abandoned
}
