// Package dispatch coordinates the message path: inbound fragments are
// buffered per conversation, a debounce timer coalesces each burst, and when
// the burst settles the joined text is authorized, answered and sent back.
package dispatch

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// FailureReply is sent when answering fails for an infrastructure reason.
// The sender should retry, not be shown internals.
const FailureReply = "Desculpe, ocorreu um erro ao processar sua mensagem. " +
	"Tente novamente em alguns instantes."

// Buffer accumulates message fragments per conversation key.
type Buffer interface {
	Append(ctx context.Context, key, text string) error
	Flush(ctx context.Context, key string) ([]string, error)
	Clear(ctx context.Context, key string) error
}

// Debouncer schedules a single deferred fire per key, restarting the
// countdown on every Reset.
type Debouncer interface {
	Reset(key string, delay time.Duration, onFire func() error)
}

// Gate decides whether a sender may use the assistant.
type Gate interface {
	Authorize(ctx context.Context, address string) (ok bool, denial string, err error)
}

// Agent produces an answer for a coalesced question.
type Agent interface {
	Answer(ctx context.Context, sessionKey, question string) (string, error)
}

// Sender delivers outbound replies.
type Sender interface {
	SendText(ctx context.Context, number, text string) error
}

// Coordinator wires the five collaborators together.
type Coordinator struct {
	buffer    Buffer
	debouncer Debouncer
	gate      Gate
	agent     Agent
	sender    Sender

	interval    time.Duration
	fireTimeout time.Duration
	logger      *slog.Logger
}

// Config carries the Coordinator's collaborators and timing knobs.
type Config struct {
	Buffer    Buffer
	Debouncer Debouncer
	Gate      Gate
	Agent     Agent
	Sender    Sender

	// Interval is the debounce window: a burst fires once no fragment has
	// arrived for this long.
	Interval time.Duration
	// FireTimeout bounds the whole authorize-answer-send path of one fire.
	FireTimeout time.Duration
	Logger      *slog.Logger
}

// New creates a Coordinator.
func New(cfg Config) *Coordinator {
	if cfg.FireTimeout <= 0 {
		cfg.FireTimeout = 2 * time.Minute
	}
	return &Coordinator{
		buffer:      cfg.Buffer,
		debouncer:   cfg.Debouncer,
		gate:        cfg.Gate,
		agent:       cfg.Agent,
		sender:      cfg.Sender,
		interval:    cfg.Interval,
		fireTimeout: cfg.FireTimeout,
		logger:      cfg.Logger,
	}
}

// OnMessageReceived buffers text for key and restarts the key's debounce
// countdown. It returns as soon as the fragment is stored; the reply happens
// later, when the burst settles.
func (c *Coordinator) OnMessageReceived(ctx context.Context, key, text string) error {
	if err := c.buffer.Append(ctx, key, text); err != nil {
		return err
	}
	c.logger.Debug("fragment buffered", "key", key)
	c.debouncer.Reset(key, c.interval, func() error {
		return c.fire(key)
	})
	return nil
}

// fire runs once per settled burst. The buffer is cleared on every path that
// consumed it, including denials and empty bursts.
func (c *Coordinator) fire(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.fireTimeout)
	defer cancel()

	fragments, err := c.buffer.Flush(ctx, key)
	if err != nil {
		return err
	}

	question := strings.TrimSpace(strings.Join(fragments, " "))
	if question == "" {
		c.logger.Debug("empty burst suppressed", "key", key)
		return c.buffer.Clear(ctx, key)
	}
	c.logger.Info("burst settled", "key", key, "fragments", len(fragments))

	reply := c.buildReply(ctx, key, question)

	if err := c.buffer.Clear(ctx, key); err != nil {
		c.logger.Error("clearing buffer", "key", key, "error", err)
	}

	if err := c.sender.SendText(ctx, key, reply); err != nil {
		// Outbound failures are logged, not retried; the next inbound
		// message starts a fresh cycle anyway.
		c.logger.Error("sending reply", "key", key, "error", err)
	}
	return nil
}

func (c *Coordinator) buildReply(ctx context.Context, key, question string) string {
	ok, denial, err := c.gate.Authorize(ctx, key)
	if err != nil {
		c.logger.Error("authorizing sender", "key", key, "error", err)
		return FailureReply
	}
	if !ok {
		c.logger.Info("sender denied", "key", key)
		return denial
	}

	answer, err := c.agent.Answer(ctx, key, question)
	if err != nil {
		c.logger.Error("answering", "key", key, "error", err)
		return FailureReply
	}
	return answer
}
