// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_type "github.com/rapidaai/api/device-api/internal/type"
	"github.com/rapidaai/pkg/commons"
)

// fakeIngestor records every operation the gateway dispatches.
type fakeIngestor struct {
	mu      sync.Mutex
	starts  []internal_type.StartPacket
	chunks  []internal_type.ChunkPacket
	stops   []internal_type.StopPacket
	stopErr error
}

func (f *fakeIngestor) Start(ctx context.Context, p internal_type.StartPacket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, p)
	return nil
}

func (f *fakeIngestor) Ingest(ctx context.Context, p internal_type.ChunkPacket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, p)
	return nil
}

func (f *fakeIngestor) Stop(ctx context.Context, p internal_type.StopPacket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, p)
	return f.stopErr
}

func dialTestGateway(t *testing.T, ingestor internal_type.Ingestor, deviceID string) *websocket.Conn {
	t.Helper()
	logger, err := commons.NewApplicationLogger(commons.Name("test-gateway"), commons.Level("debug"))
	require.NoError(t, err)

	gw := NewGateway(logger, ingestor)
	server := httptest.NewServer(http.HandlerFunc(gw.Handle))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?device_id=" + deviceID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, msgType WSMessageType, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(WSRequest{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      raw,
	}))
}

func readResponse(t *testing.T, conn *websocket.Conn) WSResponse {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSResponse
	require.NoError(t, conn.ReadJSON(&resp))
	return resp
}

func TestGatewayStartChunkStop(t *testing.T) {
	ingestor := &fakeIngestor{}
	conn := dialTestGateway(t, ingestor, "dev-42")

	sendEnvelope(t, conn, WSTypeAudioStart, WSAudioStartData{
		RecordingID: "rec-1",
		SampleRate:  16000,
	})
	resp := readResponse(t, conn)
	assert.Equal(t, WSTypeAck, resp.Type)

	payload := []byte{1, 2, 3, 4}
	sendEnvelope(t, conn, WSTypeAudioChunk, WSAudioChunkData{
		RecordingID: "rec-1",
		ChunkIndex:  0,
		Payload:     payload,
		Size:        len(payload),
	})

	sendEnvelope(t, conn, WSTypeAudioStop, WSAudioStopData{
		RecordingID: "rec-1",
		TotalChunks: 1,
	})
	resp = readResponse(t, conn)
	assert.Equal(t, WSTypeAck, resp.Type)

	ingestor.mu.Lock()
	defer ingestor.mu.Unlock()
	require.Len(t, ingestor.starts, 1)
	assert.Equal(t, "rec-1", ingestor.starts[0].RecordingID)
	assert.Equal(t, "dev-42", ingestor.starts[0].DeviceID)
	assert.Equal(t, uint32(16000), ingestor.starts[0].SampleRate)

	require.Len(t, ingestor.chunks, 1)
	assert.Equal(t, payload, ingestor.chunks[0].Payload)
	assert.Equal(t, len(payload), ingestor.chunks[0].DeclaredSize)

	require.Len(t, ingestor.stops, 1)
	assert.Equal(t, uint32(1), ingestor.stops[0].TotalChunks)
}

func TestGatewayAssignsRecordingID(t *testing.T) {
	ingestor := &fakeIngestor{}
	conn := dialTestGateway(t, ingestor, "dev-7")

	sendEnvelope(t, conn, WSTypeAudioStart, WSAudioStartData{})
	resp := readResponse(t, conn)
	assert.Equal(t, WSTypeAck, resp.Type)

	ingestor.mu.Lock()
	defer ingestor.mu.Unlock()
	require.Len(t, ingestor.starts, 1)
	assert.NotEmpty(t, ingestor.starts[0].RecordingID)
}

func TestGatewayStopFailureKeepsConnection(t *testing.T) {
	ingestor := &fakeIngestor{stopErr: fmt.Errorf("stop for unknown recording ghost")}
	conn := dialTestGateway(t, ingestor, "dev-7")

	sendEnvelope(t, conn, WSTypeAudioStop, WSAudioStopData{RecordingID: "ghost"})
	resp := readResponse(t, conn)
	assert.Equal(t, WSTypeError, resp.Type)

	// The connection must survive a failed operation.
	sendEnvelope(t, conn, WSTypePing, nil)
	resp = readResponse(t, conn)
	assert.Equal(t, WSTypePong, resp.Type)
}

func TestGatewayMalformedEnvelope(t *testing.T) {
	ingestor := &fakeIngestor{}
	conn := dialTestGateway(t, ingestor, "dev-7")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	resp := readResponse(t, conn)
	assert.Equal(t, WSTypeError, resp.Type)
}

func TestGatewayRejectsOversizedFrame(t *testing.T) {
	ingestor := &fakeIngestor{}
	conn := dialTestGateway(t, ingestor, "dev-8")

	// A frame past the read limit must drop the connection instead of being
	// buffered in full.
	big := make([]byte, maxMessageSize+1024)
	for i := range big {
		big[i] = 'a'
	}
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, big))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	ingestor.mu.Lock()
	defer ingestor.mu.Unlock()
	assert.Empty(t, ingestor.chunks)
}
