// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	internal_type "github.com/rapidaai/api/device-api/internal/type"
	"github.com/rapidaai/pkg/commons"
	"github.com/rapidaai/pkg/utils"
)

// ============================================================================
// WebSocket Message Types
// ============================================================================

// WSMessageType defines the type of message and what data structure to expect
type WSMessageType string

const (
	// Request types (device -> server)
	WSTypeAudioStart WSMessageType = "audio_start" // Data: WSAudioStartData
	WSTypeAudioChunk WSMessageType = "audio_chunk" // Data: WSAudioChunkData
	WSTypeAudioStop  WSMessageType = "audio_stop"  // Data: WSAudioStopData

	// Response types (server -> device)
	WSTypeAck   WSMessageType = "ack"   // Data: WSAckData
	WSTypeError WSMessageType = "error" // Data: WSErrorData

	// Control types (bidirectional)
	WSTypePing WSMessageType = "ping"
	WSTypePong WSMessageType = "pong"
)

// WSRequest is an incoming device message with typed data.
type WSRequest struct {
	Type      WSMessageType   `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// WSResponse is an outgoing server message.
type WSResponse struct {
	Type      WSMessageType `json:"type"`
	Timestamp int64         `json:"timestamp"`
	Data      interface{}   `json:"data,omitempty"`
}

// WSAudioStartData announces a new recording.
// Used with: WSTypeAudioStart
type WSAudioStartData struct {
	RecordingID  string `json:"recording_id"`
	SampleRate   uint32 `json:"sample_rate,omitempty"`
	BitDepth     uint16 `json:"bit_depth,omitempty"`
	ChannelCount uint16 `json:"channel_count,omitempty"`
}

// WSAudioChunkData carries one indexed PCM fragment. Payload is base64 on
// the wire (encoding/json handles []byte transparently).
// Used with: WSTypeAudioChunk
type WSAudioChunkData struct {
	RecordingID string `json:"recording_id"`
	ChunkIndex  uint32 `json:"chunk_index"`
	Payload     []byte `json:"payload"`
	Size        int    `json:"size,omitempty"`
}

// WSAudioStopData ends a recording with the device's view of the totals.
// Used with: WSTypeAudioStop
type WSAudioStopData struct {
	RecordingID     string  `json:"recording_id"`
	DurationSeconds float64 `json:"duration_seconds"`
	TotalBytes      int64   `json:"total_bytes"`
	TotalChunks     uint32  `json:"total_chunks"`
}

// WSAckData acknowledges a start or stop.
type WSAckData struct {
	RecordingID string `json:"recording_id"`
}

// WSErrorData reports a failed operation without closing the connection.
type WSErrorData struct {
	Message string `json:"message"`
}

// ============================================================================
// Gateway
// ============================================================================

// maxMessageSize bounds a single inbound frame. Chunks ride base64-encoded
// inside a JSON envelope, so this leaves generous headroom over any sane
// chunk size while keeping one hostile frame from exhausting memory.
const maxMessageSize = 1 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 16 * 1024,
	// Devices connect from anywhere; auth happens upstream of this engine.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Gateway bridges device WebSocket connections to the reassembly engine.
// One read loop per connection decodes envelopes into the three ingest
// operations. Operation failures are answered with an error envelope and
// never tear the connection down.
type Gateway struct {
	logger   commons.Logger
	ingestor internal_type.Ingestor
}

func NewGateway(logger commons.Logger, ingestor internal_type.Ingestor) *Gateway {
	return &Gateway{logger: logger, ingestor: ingestor}
}

// Handle upgrades the request and serves the device until it disconnects.
// The device identifies itself with the device_id query parameter.
func (g *Gateway) Handle(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if utils.IsEmpty(deviceID) {
		deviceID = "unknown-" + uuid.New().String()[:8]
		g.logger.Warnf("device connected without device_id, assigned %s", deviceID)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Errorf("websocket upgrade failed for device %s: %v", deviceID, err)
		return
	}
	defer conn.Close()

	g.logger.Infof("device %s connected from %s", deviceID, r.RemoteAddr)
	g.readLoop(r.Context(), conn, deviceID)
	g.logger.Infof("device %s disconnected", deviceID)
}

func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn, deviceID string) {
	conn.SetReadLimit(maxMessageSize)
	for {
		messageType, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Warnf("device %s read error: %v", deviceID, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var req WSRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			g.logger.Warnf("device %s sent undecodable envelope: %v", deviceID, err)
			g.send(conn, WSTypeError, WSErrorData{Message: "undecodable envelope"})
			continue
		}

		g.dispatch(ctx, conn, deviceID, req)
	}
}

func (g *Gateway) dispatch(ctx context.Context, conn *websocket.Conn, deviceID string, req WSRequest) {
	switch req.Type {
	case WSTypePing:
		g.send(conn, WSTypePong, nil)

	case WSTypeAudioStart:
		var data WSAudioStartData
		if err := json.Unmarshal(req.Data, &data); err != nil {
			g.send(conn, WSTypeError, WSErrorData{Message: "malformed audio_start"})
			return
		}
		if utils.IsEmpty(data.RecordingID) {
			data.RecordingID = uuid.New().String()
			g.logger.Warnf("device %s started recording without id, assigned %s", deviceID, data.RecordingID)
		}
		err := g.ingestor.Start(ctx, internal_type.StartPacket{
			RecordingID:  data.RecordingID,
			DeviceID:     deviceID,
			SampleRate:   data.SampleRate,
			BitDepth:     data.BitDepth,
			ChannelCount: data.ChannelCount,
		})
		if err != nil {
			g.logger.Errorf("device %s audio_start failed: %v", deviceID, err)
			g.send(conn, WSTypeError, WSErrorData{Message: err.Error()})
			return
		}
		g.send(conn, WSTypeAck, WSAckData{RecordingID: data.RecordingID})

	case WSTypeAudioChunk:
		var data WSAudioChunkData
		if err := json.Unmarshal(req.Data, &data); err != nil {
			g.send(conn, WSTypeError, WSErrorData{Message: "malformed audio_chunk"})
			return
		}
		err := g.ingestor.Ingest(ctx, internal_type.ChunkPacket{
			RecordingID:  data.RecordingID,
			Index:        data.ChunkIndex,
			Payload:      data.Payload,
			DeclaredSize: data.Size,
		})
		if err != nil {
			// Chunk-level failures are local; report and keep the stream.
			g.logger.Errorf("device %s chunk %d rejected: %v", deviceID, data.ChunkIndex, err)
			g.send(conn, WSTypeError, WSErrorData{Message: err.Error()})
		}

	case WSTypeAudioStop:
		var data WSAudioStopData
		if err := json.Unmarshal(req.Data, &data); err != nil {
			g.send(conn, WSTypeError, WSErrorData{Message: "malformed audio_stop"})
			return
		}
		err := g.ingestor.Stop(ctx, internal_type.StopPacket{
			RecordingID:     data.RecordingID,
			DurationSeconds: data.DurationSeconds,
			TotalBytes:      data.TotalBytes,
			TotalChunks:     data.TotalChunks,
		})
		if err != nil {
			g.logger.Errorf("device %s audio_stop failed: %v", deviceID, err)
			g.send(conn, WSTypeError, WSErrorData{Message: err.Error()})
			return
		}
		g.send(conn, WSTypeAck, WSAckData{RecordingID: data.RecordingID})

	default:
		g.logger.Debugf("device %s sent unhandled message type %q", deviceID, req.Type)
	}
}

func (g *Gateway) send(conn *websocket.Conn, msgType WSMessageType, data interface{}) {
	resp := WSResponse{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
	if err := conn.WriteJSON(resp); err != nil {
		g.logger.Warnf("failed to write %s response: %v", msgType, err)
	}
}
