package lyria

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-livemusic/core/generation"
	"go.opentelemetry.io/otel/codes"
)

const closeGracePeriod = time.Second

type session struct {
	id string
	ws *websocket.Conn
	mu sync.Mutex

	handlers generation.Handlers
	closed   atomic.Bool
}

func (s *session) ID() string {
	return s.id
}

func (s *session) setup(ctx context.Context, model string, timeout time.Duration) error {
	if err := s.sendWebsocketMessage(newSetupMessage(model)); err != nil {
		return fmt.Errorf("%w: %w", ErrSetupFailed, err)
	}

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := s.ws.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %w", ErrSetupFailed, err)
	}
	defer s.ws.SetReadDeadline(time.Time{})

	for {
		_, msg, err := s.ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSetupFailed, err)
		}

		var parsedMsg serverMessage
		if err := json.Unmarshal(msg, &parsedMsg); err != nil {
			logger.Debug("ignoring unreadable setup message", slog.String("session_id", s.id), slog.String("error", err.Error()))
			continue
		}
		if parsedMsg.SetupComplete != nil {
			return nil
		}
	}
}

func (s *session) processIncomingMessages() {
	for {
		msgType, msg, err := s.ws.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.closed.Store(true)
			_ = s.ws.Close()

			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Info("music session closed by server", slog.String("session_id", s.id))
				s.handlers.OnClose()
				return
			}
			logger.Error("music session read failed", slog.String("session_id", s.id), slog.String("error", err.Error()))
			s.handlers.OnError(fmt.Errorf("music session failed: %w", err))
			return
		}

		switch msgType {
		case websocket.TextMessage, websocket.BinaryMessage:
		default:
			continue
		}

		var parsedMsg serverMessage
		if err := json.Unmarshal(msg, &parsedMsg); err != nil {
			logger.Warn("failed to unmarshal music session message", slog.String("session_id", s.id), slog.String("error", err.Error()))
			continue
		}

		if parsedMsg.ServerContent != nil {
			for _, chunk := range parsedMsg.ServerContent.AudioChunks {
				s.handlers.OnChunk(generation.Chunk{Data: chunk.Data, MimeType: chunk.MimeType})
			}
		}
		if parsedMsg.FilteredPrompt != nil {
			s.handlers.OnFilteredPrompt(generation.FilteredPrompt{
				Text:   parsedMsg.FilteredPrompt.Text,
				Reason: parsedMsg.FilteredPrompt.FilteredReason,
			})
		}
		if parsedMsg.Warning != "" {
			logger.Warn("music session warning", slog.String("session_id", s.id), slog.String("warning", parsedMsg.Warning))
		}
	}
}

func (s *session) SetWeightedPrompts(ctx context.Context, prompts []generation.WeightedPrompt) error {
	_, span := tracer.Start(ctx, "set weighted prompts")
	defer span.End()

	if len(prompts) == 0 {
		return generation.ErrNoPrompts
	}
	if err := s.sendWebsocketMessage(newWeightedPromptsMessage(prompts)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to send weighted prompts: %w", err)
	}
	return nil
}

func (s *session) SetGenerationConfig(ctx context.Context, config generation.GenerationConfig) error {
	_, span := tracer.Start(ctx, "set generation config")
	defer span.End()

	if err := s.sendWebsocketMessage(generationConfigMessage{MusicGenerationConfig: config}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to send generation config: %w", err)
	}
	return nil
}

func (s *session) Play() error {
	if err := s.sendWebsocketMessage(playMsg); err != nil {
		return fmt.Errorf("failed to send play: %w", err)
	}
	return nil
}

func (s *session) Pause() error {
	if err := s.sendWebsocketMessage(pauseMsg); err != nil {
		return fmt.Errorf("failed to send pause: %w", err)
	}
	return nil
}

func (s *session) Stop() error {
	if err := s.sendWebsocketMessage(stopMsg); err != nil {
		return fmt.Errorf("failed to send stop: %w", err)
	}
	return nil
}

func (s *session) ResetContext() error {
	if err := s.sendWebsocketMessage(resetContextMsg); err != nil {
		return fmt.Errorf("failed to send reset context: %w", err)
	}
	return nil
}

func (s *session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.mu.Lock()
	closeErr := s.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGracePeriod),
	)
	s.mu.Unlock()

	if err := s.ws.Close(); err != nil {
		return fmt.Errorf("failed to close websocket: %w", errors.Join(closeErr, err))
	}
	return nil
}

func (s *session) sendWebsocketMessage(msg any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return generation.ErrSessionClosed
	}

	if err := s.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to websocket: %w", err)
	}
	return nil
}
