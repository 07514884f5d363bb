// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stream makes chat generation streams resumable.
//
// Every rendered SSE frame a generation produces is appended to a Redis
// list keyed by stream id and simultaneously published on a channel with
// the same name. A client that reconnects replays the buffered frames and
// then follows the live channel, so a dropped connection loses nothing.
//
// Frames carry a monotonically increasing sequence number so a reader that
// subscribes before reading the buffer can drop the overlap between replay
// and live delivery.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrStreamUnknown means no buffer exists for the stream id.
	ErrStreamUnknown = errors.New("stream: unknown stream id")

	// ErrStreamDone means the stream completed; there is nothing to follow.
	ErrStreamDone = errors.New("stream: stream already completed")
)

const (
	// streamTTL bounds how long a finished or abandoned buffer lingers.
	streamTTL = 24 * time.Hour

	// eosPayload is the internal end-of-stream marker appended by Close.
	// It is never emitted to clients.
	eosPayload = "\x00eos"
)

// encodeFrame prefixes a payload with its sequence number.
func encodeFrame(seq int64, payload string) string {
	return fmt.Sprintf("%d|%s", seq, payload)
}

// decodeFrame splits a buffered frame into sequence number and payload.
func decodeFrame(frame string) (int64, string, bool) {
	idx := strings.IndexByte(frame, '|')
	if idx <= 0 {
		return 0, "", false
	}
	seq, err := strconv.ParseInt(frame[:idx], 10, 64)
	if err != nil {
		return 0, "", false
	}
	return seq, frame[idx+1:], true
}

// Controller owns the Redis connection behind resumable streams. A nil
// Controller is valid and reports Enabled() == false; the chat handlers
// then fall back to direct, non-resumable streaming.
type Controller struct {
	client *redis.Client
	log    *slog.Logger
}

// NewController connects to Redis and verifies the connection.
func NewController(ctx context.Context, redisURL string, log *slog.Logger) (*Controller, error) {
	if log == nil {
		panic("stream.NewController: logger is required")
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("stream redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("stream redis ping: %w", err)
	}
	return &Controller{client: client, log: log}, nil
}

// Enabled reports whether resumable streaming is available.
func (c *Controller) Enabled() bool {
	return c != nil && c.client != nil
}

// Close releases the Redis connection.
func (c *Controller) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}

func framesKey(streamID string) string { return "stream:" + streamID + ":frames" }
func channel(streamID string) string   { return "stream:" + streamID }

// Open starts a new durable stream buffer. The caller must Close the
// returned Publisher exactly once, on every exit path, or resumed readers
// will wait for frames that never come.
func (c *Controller) Open(streamID string) *Publisher {
	return &Publisher{c: c, streamID: streamID}
}

// Publisher appends frames to one stream. Not safe for concurrent use;
// a stream has exactly one producer.
type Publisher struct {
	c        *Controller
	streamID string
	seq      int64
	closed   bool
}

// Append stores and broadcasts one rendered SSE frame.
func (p *Publisher) Append(ctx context.Context, payload string) error {
	if p.closed {
		return fmt.Errorf("stream %s: append after close", p.streamID)
	}
	return p.write(ctx, payload)
}

// Close appends the end-of-stream marker and seals the buffer. Idempotent.
func (p *Publisher) Close(ctx context.Context) error {
	if p.closed {
		return nil
	}
	p.closed = true
	return p.write(ctx, eosPayload)
}

func (p *Publisher) write(ctx context.Context, payload string) error {
	frame := encodeFrame(p.seq, payload)
	p.seq++

	pipe := p.c.client.Pipeline()
	pipe.RPush(ctx, framesKey(p.streamID), frame)
	pipe.Expire(ctx, framesKey(p.streamID), streamTTL)
	pipe.Publish(ctx, channel(p.streamID), frame)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("stream %s: append: %w", p.streamID, err)
	}
	return nil
}

// State probes a stream buffer without emitting anything.
//
// # Outputs
//
//   - exists: Whether any buffer exists for the id.
//   - done: Whether the buffer is sealed with the end-of-stream marker.
func (c *Controller) State(ctx context.Context, streamID string) (exists, done bool, err error) {
	last, err := c.client.LIndex(ctx, framesKey(streamID), -1).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("stream %s: probe: %w", streamID, err)
	}
	_, payload, ok := decodeFrame(last)
	return true, ok && payload == eosPayload, nil
}

// Resume replays a stream's buffered frames and then follows it live until
// the end-of-stream marker.
//
// # Description
//
// The subscription is established before the buffer is read, so no frame
// can fall between replay and live delivery; duplicates in the overlap are
// dropped by sequence number. emit receives rendered SSE frames in order.
//
// # Outputs
//
//   - error: ErrStreamUnknown when no buffer exists for the id,
//     ErrStreamDone when the stream had already completed (the buffered
//     frames are still replayed first), ctx.Err() when the caller
//     disconnects, or an emit/transport failure.
func (c *Controller) Resume(ctx context.Context, streamID string, emit func(frame string) error) error {
	sub := c.client.Subscribe(ctx, channel(streamID))
	defer sub.Close()

	// Force the SUBSCRIBE round trip before reading the buffer.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("stream %s: subscribe: %w", streamID, err)
	}

	buffered, err := c.client.LRange(ctx, framesKey(streamID), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("stream %s: read buffer: %w", streamID, err)
	}
	if len(buffered) == 0 {
		return ErrStreamUnknown
	}

	lastSeq := int64(-1)
	for _, frame := range buffered {
		seq, payload, ok := decodeFrame(frame)
		if !ok {
			c.log.Warn("dropping malformed stream frame",
				slog.String("stream_id", streamID))
			continue
		}
		lastSeq = seq
		if payload == eosPayload {
			return ErrStreamDone
		}
		if err := emit(payload); err != nil {
			return err
		}
	}

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("stream %s: subscription closed", streamID)
			}
			seq, payload, ok := decodeFrame(msg.Payload)
			if !ok || seq <= lastSeq {
				continue
			}
			lastSeq = seq
			if payload == eosPayload {
				return nil
			}
			if err := emit(payload); err != nil {
				return err
			}
		}
	}
}
