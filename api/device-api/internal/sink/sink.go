// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_sink

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Sink is the append-only byte stream behind one in-progress recording.
// Payload bytes land in a .pcm.part file next to where the finished
// container will be written; Finalize prepends the container header and
// promotes the partial file to its final .wav name. A Sink is owned by
// exactly one session and is not safe for concurrent use on its own.
type Sink struct {
	file      *os.File
	partPath  string
	finalPath string
	written   int64
	closed    bool
}

// New creates the partial file for a recording. Parent directories are
// created if needed.
func New(dir, recordingID string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating recording directory: %w", err)
	}

	partPath := filepath.Join(dir, recordingID+".pcm.part")
	f, err := os.Create(partPath)
	if err != nil {
		return nil, fmt.Errorf("creating partial recording file: %w", err)
	}

	return &Sink{
		file:      f,
		partPath:  partPath,
		finalPath: filepath.Join(dir, recordingID+".wav"),
	}, nil
}

// Append writes payload bytes at the end of the partial file.
func (s *Sink) Append(p []byte) error {
	if s.closed {
		return fmt.Errorf("append to closed sink %s", s.partPath)
	}
	n, err := s.file.Write(p)
	s.written += int64(n)
	if err != nil {
		return fmt.Errorf("appending %d bytes to %s: %w", len(p), s.partPath, err)
	}
	return nil
}

// BytesWritten returns the number of payload bytes committed so far.
func (s *Sink) BytesWritten() int64 {
	return s.written
}

// Finalize closes the partial file, writes header followed by the committed
// payload into the final container path, and removes the partial file.
// Returns the final path. The sink is unusable afterwards; failure leaves
// neither the partial file nor a half-written container behind.
func (s *Sink) Finalize(header []byte) (string, error) {
	if s.closed {
		return "", fmt.Errorf("finalize on closed sink %s", s.partPath)
	}
	s.closed = true

	if err := s.file.Close(); err != nil {
		os.Remove(s.partPath)
		return "", fmt.Errorf("closing partial file %s: %w", s.partPath, err)
	}

	part, err := os.Open(s.partPath)
	if err != nil {
		os.Remove(s.partPath)
		return "", fmt.Errorf("reopening partial file %s: %w", s.partPath, err)
	}
	defer part.Close()

	out, err := os.Create(s.finalPath)
	if err != nil {
		os.Remove(s.partPath)
		return "", fmt.Errorf("creating container file %s: %w", s.finalPath, err)
	}

	if _, err := out.Write(header); err != nil {
		out.Close()
		os.Remove(s.finalPath)
		os.Remove(s.partPath)
		return "", fmt.Errorf("writing container header: %w", err)
	}
	if _, err := io.Copy(out, part); err != nil {
		out.Close()
		os.Remove(s.finalPath)
		os.Remove(s.partPath)
		return "", fmt.Errorf("copying payload into container: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(s.finalPath)
		os.Remove(s.partPath)
		return "", fmt.Errorf("closing container file %s: %w", s.finalPath, err)
	}

	os.Remove(s.partPath)
	return s.finalPath, nil
}

// Abort closes and removes the partial file without producing a container.
// Safe to call more than once.
func (s *Sink) Abort() {
	if s.closed {
		return
	}
	s.closed = true
	s.file.Close()
	os.Remove(s.partPath)
}
