package visibility

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
)

// Subscriber maintains a websocket connection to the scoring channel and
// emits typed Updates. It reconnects with backoff on failure and closes the
// update channel when stopped.
type Subscriber struct {
	url     string
	token   string
	logger  *log.Logger
	updates chan Update
}

// NewSubscriber creates a Subscriber for the given websocket URL. If logger
// is nil, a default stderr logger is used.
func NewSubscriber(url, token string, logger *log.Logger) *Subscriber {
	if logger == nil {
		logger = log.New(os.Stderr, "[visibility] ", log.LstdFlags)
	}
	return &Subscriber{
		url:     url,
		token:   token,
		logger:  logger,
		updates: make(chan Update, 8),
	}
}

// Updates returns the channel of decoded scoring updates. It is closed when
// Run returns.
func (s *Subscriber) Updates() <-chan Update {
	return s.updates
}

// Run connects and reads updates until ctx is cancelled. Connection failures
// retry with capped exponential backoff; malformed messages are logged and
// skipped.
func (s *Subscriber) Run(ctx context.Context) {
	defer close(s.updates)

	backoff := time.Second
	const maxBackoff = time.Minute

	for {
		if err := s.readConn(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Printf("Scoring subscription dropped, reconnecting in %v: %v", backoff, err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (s *Subscriber) readConn(ctx context.Context) error {
	opts := &websocket.DialOptions{}
	if s.token != "" {
		opts.HTTPHeader = map[string][]string{
			"Authorization": {"Bearer " + s.token},
		}
	}

	conn, _, err := websocket.Dial(ctx, s.url, opts)
	if err != nil {
		return fmt.Errorf("failed to dial scoring channel: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	s.logger.Printf("Connected to scoring channel")

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}
		if msgType != websocket.MessageText {
			continue
		}

		var u Update
		if err := json.Unmarshal(data, &u); err != nil {
			s.logger.Printf("Skipping malformed scoring message: %v", err)
			continue
		}

		switch u.Type {
		case "scoring_started", "scoring_updated":
		default:
			continue
		}

		select {
		case s.updates <- u:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
