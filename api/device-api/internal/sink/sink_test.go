// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_sink

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestAppendAndFinalize(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, "rec-1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.Append([]byte("abcd")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append([]byte("efgh")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if s.BytesWritten() != 8 {
		t.Errorf("expected 8 bytes written, got %d", s.BytesWritten())
	}

	header := []byte("HDR!")
	path, err := s.Finalize(header)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if path != filepath.Join(dir, "rec-1.wav") {
		t.Errorf("unexpected final path %s", path)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading container: %v", err)
	}
	if !bytes.Equal(got, []byte("HDR!abcdefgh")) {
		t.Errorf("container content mismatch: %q", got)
	}

	// Partial file must be gone after finalization.
	if _, err := os.Stat(filepath.Join(dir, "rec-1.pcm.part")); !os.IsNotExist(err) {
		t.Error("partial file still present after finalize")
	}
}

func TestAbortRemovesPartial(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, "rec-2")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Append([]byte("data")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	s.Abort()
	s.Abort() // idempotent

	if _, err := os.Stat(filepath.Join(dir, "rec-2.pcm.part")); !os.IsNotExist(err) {
		t.Error("partial file still present after abort")
	}
	if _, err := os.Stat(filepath.Join(dir, "rec-2.wav")); !os.IsNotExist(err) {
		t.Error("abort must not produce a container")
	}
}

func TestAppendAfterFinalizeFails(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, "rec-3")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Finalize(nil); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := s.Append([]byte("late")); err == nil {
		t.Error("expected error appending to closed sink")
	}
}

func TestFinalizeFailureRemovesPartial(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, "rec-4")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Append([]byte("data")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Occupy the container path with a directory so promotion fails.
	if err := os.Mkdir(filepath.Join(dir, "rec-4.wav"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if _, err := s.Finalize([]byte("HDR!")); err == nil {
		t.Fatal("expected finalize to fail against an occupied container path")
	}
	if _, err := os.Stat(filepath.Join(dir, "rec-4.pcm.part")); !os.IsNotExist(err) {
		t.Error("partial file still present after failed finalize")
	}
}
