package livemusic

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/koscakluka/ema-livemusic/core/generation"
	"go.opentelemetry.io/otel/codes"
)

type connectAttempt struct {
	done    chan struct{}
	session generation.Session
	err     error
}

// sessionConnection owns the single generation session of a helper.
type sessionConnection struct {
	backend generation.Backend

	mu      sync.Mutex
	session generation.Session
	pending *connectAttempt
}

// connect returns the established session, joins an attempt that is already
// in flight or opens a new session.
func (c *sessionConnection) connect(ctx context.Context, handlers generation.Handlers) (generation.Session, error) {
	c.mu.Lock()
	if c.session != nil {
		session := c.session
		c.mu.Unlock()
		return session, nil
	}
	if attempt := c.pending; attempt != nil {
		c.mu.Unlock()
		select {
		case <-attempt.done:
			return attempt.session, attempt.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.backend == nil {
		c.mu.Unlock()
		return nil, ErrNoBackend
	}
	attempt := &connectAttempt{done: make(chan struct{})}
	c.pending = attempt
	c.mu.Unlock()

	ctx, span := tracer.Start(ctx, "connect session")
	defer span.End()

	session, err := c.backend.Connect(ctx, handlers)

	c.mu.Lock()
	if c.pending != attempt {
		c.mu.Unlock()
		if session != nil {
			_ = session.Close()
		}
		attempt.err = errConnectAbandoned
		close(attempt.done)
		return nil, errConnectAbandoned
	}
	c.pending = nil
	if err == nil {
		c.session = session
	}
	attempt.session, attempt.err = session, err
	close(attempt.done)
	c.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	logger.Info("generation session established", slog.String("session_id", session.ID()))
	return session, nil
}

func (c *sessionConnection) current() generation.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// setPrompt pushes the active prompts, and the generation config when set, to
// the established session.
func (c *sessionConnection) setPrompt(ctx context.Context, spec generation.PromptSpec) error {
	ctx, span := tracer.Start(ctx, "set prompt")
	defer span.End()

	session := c.current()
	if session == nil {
		return ErrNoActiveSession
	}

	err := session.SetWeightedPrompts(ctx, spec.Active())
	if err == nil && spec.Config != nil {
		err = session.SetGenerationConfig(ctx, *spec.Config)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// detach forgets the session and abandons an attempt still in flight, whose
// session is closed as soon as it arrives. The caller closes the returned
// session.
func (c *sessionConnection) detach() generation.Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	session := c.session
	c.session = nil
	c.pending = nil
	return session
}

// closeSession asks the backend to stop generating and closes the session.
func closeSession(session generation.Session) error {
	if session == nil {
		return nil
	}

	stopErr := session.Stop()
	if errors.Is(stopErr, generation.ErrSessionClosed) {
		stopErr = nil
	}
	return errors.Join(stopErr, session.Close())
}
