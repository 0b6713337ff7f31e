// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_type

import "context"

// Default audio format for device recordings. Devices that do not announce
// their format on audio_start are assumed to send LINEAR16 mono at 16 kHz.
const (
	DefaultSampleRate   uint32 = 16000
	DefaultBitDepth     uint16 = 16
	DefaultChannelCount uint16 = 1
)

// StartPacket announces a new recording from a device. Format fields are
// optional; zero values fall back to the defaults above.
type StartPacket struct {
	RecordingID  string
	DeviceID     string
	SampleRate   uint32
	BitDepth     uint16
	ChannelCount uint16
}

// ChunkPacket is one indexed fragment of raw PCM payload as decoded from the
// device transport. Indexes start at 0 and chunks may arrive in any order.
type ChunkPacket struct {
	RecordingID string
	Index       uint32
	Payload     []byte
	// DeclaredSize is the payload length the device claims to have sent.
	// Zero when the device did not declare one.
	DeclaredSize int
}

// StopPacket signals the end of a recording. TotalChunks is authoritative:
// finalization pads up to it with silence regardless of loss.
type StopPacket struct {
	RecordingID     string
	DurationSeconds float64
	TotalBytes      int64
	TotalChunks     uint32
}

// Completion describes one finished recording artifact. Emitted exactly once
// per successful finalization; abandoned recordings never produce one.
type Completion struct {
	DeviceID          string  `json:"deviceId"`
	RecordingID       string  `json:"recordingId"`
	FilePath          string  `json:"filePath"`
	DurationSeconds   float64 `json:"durationSeconds"`
	ByteSize          int64   `json:"byteSize"`
	SampleRate        uint32  `json:"sampleRate"`
	BitDepth          uint16  `json:"bitDepth"`
	ChannelCount      uint16  `json:"channelCount"`
	ChunksWritten     uint64  `json:"chunksWritten"`
	ChunksSynthesized uint64  `json:"chunksSynthesized"`
	WriteErrors       uint64  `json:"writeErrors"`
}

// Ingestor is the reassembly engine surface exposed to the device transport.
// All three operations are safe for concurrent use across recordings.
type Ingestor interface {
	// Start registers a recording. A duplicate start for a live recording id
	// is resolved by the configured duplicate-start policy.
	Start(ctx context.Context, packet StartPacket) error
	// Ingest admits one chunk. Late duplicates and over-capacity early
	// arrivals are absorbed silently; Ingest only fails when no session can
	// be created for the recording id.
	Ingest(ctx context.Context, packet ChunkPacket) error
	// Stop finalizes the recording into a playable container, padding missing
	// chunks with silence up to packet.TotalChunks.
	Stop(ctx context.Context, packet StopPacket) error
}

// CompletionPublisher receives the completion event for every finalized
// recording. Implementations must not block the finalizing session for
// longer than a bounded hand-off.
type CompletionPublisher interface {
	Publish(ctx context.Context, completion Completion) error
}
