// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_wave

import (
	"bytes"
	"encoding/binary"
)

const (
	// HeaderSize is the fixed size of a canonical PCM WAV header.
	HeaderSize = 44

	wavPCMFormat = 1 // linear PCM format tag
)

// Header builds the canonical 44-byte RIFF/WAVE header for a linear PCM
// payload of dataLen bytes. All multi-byte fields are little-endian. The
// result depends only on the four inputs, nothing else.
func Header(dataLen uint32, sampleRate uint32, bitDepth uint16, channels uint16) []byte {
	bytesPerSample := uint32(bitDepth / 8)
	byteRate := sampleRate * uint32(channels) * bytesPerSample
	blockAlign := uint16(channels) * uint16(bytesPerSample)

	var buf bytes.Buffer
	buf.Grow(HeaderSize)

	buf.Write([]byte("RIFF"))
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.Write([]byte("WAVE"))

	buf.Write([]byte("fmt "))
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(wavPCMFormat))
	binary.Write(&buf, binary.LittleEndian, channels)
	binary.Write(&buf, binary.LittleEndian, sampleRate)
	binary.Write(&buf, binary.LittleEndian, byteRate)
	binary.Write(&buf, binary.LittleEndian, blockAlign)
	binary.Write(&buf, binary.LittleEndian, bitDepth)

	// data chunk
	buf.Write([]byte("data"))
	binary.Write(&buf, binary.LittleEndian, dataLen)

	return buf.Bytes()
}
