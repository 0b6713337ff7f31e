// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_events

import (
	"context"
	"encoding/json"
	"fmt"

	internal_type "github.com/rapidaai/api/device-api/internal/type"
	"github.com/rapidaai/pkg/commons"
	"github.com/rapidaai/pkg/connectors"
)

// loggingPublisher is the default completion sink: one structured log line
// per finished recording. Used when no downstream consumer is configured.
type loggingPublisher struct {
	logger commons.Logger
}

func NewLoggingPublisher(logger commons.Logger) internal_type.CompletionPublisher {
	return &loggingPublisher{logger: logger}
}

func (p *loggingPublisher) Publish(ctx context.Context, c internal_type.Completion) error {
	p.logger.Infof("recording completed: device=%s recording=%s file=%s duration=%.2fs bytes=%d written=%d synthesized=%d",
		c.DeviceID, c.RecordingID, c.FilePath, c.DurationSeconds, c.ByteSize, c.ChunksWritten, c.ChunksSynthesized)
	return nil
}

// redisPublisher pushes completion events as JSON on a Redis channel so
// downstream consumers (ASR, storage indexer) can pick up finished
// recordings without polling the filesystem.
type redisPublisher struct {
	redis   connectors.RedisConnector
	channel string
	logger  commons.Logger
}

func NewRedisPublisher(redis connectors.RedisConnector, channel string, logger commons.Logger) internal_type.CompletionPublisher {
	return &redisPublisher{redis: redis, channel: channel, logger: logger}
}

func (p *redisPublisher) Publish(ctx context.Context, c internal_type.Completion) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding completion for recording %s: %w", c.RecordingID, err)
	}
	if err := p.redis.Client().Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing completion for recording %s: %w", c.RecordingID, err)
	}
	p.logger.Debugf("published completion for recording %s on %s", c.RecordingID, p.channel)
	return nil
}
