// Package lyria connects to the Lyria RealTime music generation service over
// its bidirectional websocket API.
package lyria

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-livemusic/core/generation"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultEndpoint     = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateMusic"
	DefaultModel        = "models/lyria-realtime-exp"
	DefaultSetupTimeout = 10 * time.Second
)

var (
	ErrMissingAPIKey = errors.New("lyria api key not configured")
	ErrSetupFailed   = errors.New("music session setup failed")
)

type Client struct {
	apiKey       string
	endpoint     string
	model        string
	setupTimeout time.Duration
	dialer       *websocket.Dialer
}

type ClientOption func(*Client)

func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) {
		c.apiKey = apiKey
	}
}

func WithEndpoint(endpoint string) ClientOption {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

func WithSetupTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.setupTimeout = timeout
		}
	}
}

func WithDialer(dialer *websocket.Dialer) ClientOption {
	return func(c *Client) {
		c.dialer = dialer
	}
}

// NewClient creates a client. Without WithAPIKey the key is read from
// GEMINI_API_KEY.
func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{
		endpoint:     DefaultEndpoint,
		model:        DefaultModel,
		setupTimeout: DefaultSetupTimeout,
		dialer:       websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey == "" {
		c.apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	return c, nil
}

// Connect opens a session and waits for the service to acknowledge the setup.
func (c *Client) Connect(ctx context.Context, handlers generation.Handlers) (generation.Session, error) {
	ctx, span := tracer.Start(ctx, "connect music session",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("lyria.model", c.model)))
	defer span.End()

	s, err := c.connect(ctx, handlers)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("session.id", s.id))

	return s, nil
}

func (c *Client) connect(ctx context.Context, handlers generation.Handlers) (*session, error) {
	endpoint, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid lyria endpoint: %w", err)
	}
	query := endpoint.Query()
	query.Set("key", c.apiKey)
	endpoint.RawQuery = query.Encode()

	conn, _, err := c.dialer.DialContext(ctx, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to lyria: %w", err)
	}

	s := &session{
		id:       uuid.NewString(),
		ws:       conn,
		handlers: handlers.WithDefaults(),
	}

	if err := s.setup(ctx, c.model, c.setupTimeout); err != nil {
		_ = conn.Close()
		return nil, err
	}

	go s.processIncomingMessages()

	logger.Info("music session connected", slog.String("session_id", s.id), slog.String("model", c.model))
	return s, nil
}
