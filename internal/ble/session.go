package ble

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// State is the lifecycle state of a Session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// SessionOptions configures connection behavior.
type SessionOptions struct {
	ConnectTimeout   time.Duration // bound on establishing the link (default 20s)
	SettleDelay      time.Duration // wait after link-up before the first write; 0 disables
	ConnectRetries   int           // extra attempts after a connect timeout; 0 disables
	RetryBackoffBase time.Duration // first retry delay (default 1s)
	RetryBackoffMax  time.Duration // retry delay cap (default 30s)
}

// DefaultSessionOptions returns the timings known to work with Godox fixtures.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		ConnectTimeout:   20 * time.Second,
		SettleDelay:      1 * time.Second,
		ConnectRetries:   0,
		RetryBackoffBase: 1 * time.Second,
		RetryBackoffMax:  30 * time.Second,
	}
}

// Session owns the BLE link to one peripheral address. It connects lazily
// before a write and serializes connect, write and disconnect so frames
// never interleave. Safe for concurrent use.
type Session struct {
	adapter Adapter
	address string
	opts    SessionOptions

	mu    sync.Mutex
	state atomic.Int32
	conn  Connection
	chars map[string]Characteristic // keyed by lower-case UUID
	gen   uint64                    // bumped per link so stale disconnect callbacks are ignored
	shut  bool                      // set by shutdown; the session never reconnects
}

// NewSession creates a disconnected session for address.
func NewSession(adapter Adapter, address string, opts SessionOptions) *Session {
	if adapter == nil {
		panic("ble: NewSession called with nil adapter")
	}
	defaults := DefaultSessionOptions()
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaults.ConnectTimeout
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}
	if opts.ConnectRetries < 0 {
		opts.ConnectRetries = 0
	}
	if opts.RetryBackoffBase <= 0 {
		opts.RetryBackoffBase = defaults.RetryBackoffBase
	}
	if opts.RetryBackoffMax <= 0 {
		opts.RetryBackoffMax = defaults.RetryBackoffMax
	}
	return &Session{
		adapter: adapter,
		address: address,
		opts:    opts,
	}
}

// Address returns the peripheral address this session connects to.
func (s *Session) Address() string { return s.address }

// State returns the cached lifecycle state. It never touches the transport.
func (s *Session) State() State { return State(s.state.Load()) }

// Connected reports whether the cached state is StateConnected.
func (s *Session) Connected() bool { return s.State() == StateConnected }

// Connect opens the link if it is not already open.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shut {
		return ErrDeviceClosed
	}
	return s.connectLocked(ctx)
}

// Disconnect closes the link. It is a no-op when already disconnected.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnectLocked()
}

// shutdown disconnects and marks the session unusable.
func (s *Session) shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shut = true
	return s.disconnectLocked()
}

// disconnectLocked closes the current link (caller must hold mu).
func (s *Session) disconnectLocked() error {
	if s.State() != StateConnected || s.conn == nil {
		return nil
	}

	s.setState(StateDisconnecting)
	conn := s.conn
	s.gen++
	err := conn.Disconnect()
	s.dropLinkLocked()

	if err != nil {
		return fmt.Errorf("%w: disconnect %s: %w", ErrConnection, s.address, err)
	}
	slog.Info("[BLE] disconnected", "mac", s.address)
	return nil
}

// Write sends frame to the characteristic charUUID, connecting first when
// the session is not connected.
func (s *Session) Write(ctx context.Context, charUUID string, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shut {
		return ErrDeviceClosed
	}
	if s.State() != StateConnected {
		if err := s.connectLocked(ctx); err != nil {
			return err
		}
	}

	char, err := s.characteristicLocked(charUUID)
	if err != nil {
		return err
	}

	slog.Debug("[BLE] write", "mac", s.address, "char", charUUID, "frame", hex.EncodeToString(frame))
	if err := char.Write(frame); err != nil {
		return fmt.Errorf("%w: write %s on %s: %w", ErrConnection, charUUID, s.address, err)
	}
	return nil
}

// connectLocked dials with retries on timeout (caller must hold mu).
func (s *Session) connectLocked(ctx context.Context) error {
	if s.State() == StateConnected {
		return nil
	}

	for attempt := 0; ; attempt++ {
		err := s.dialLocked(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConnectionTimeout) || attempt >= s.opts.ConnectRetries || ctx.Err() != nil {
			return err
		}

		delay := backoffDelay(attempt, s.opts.RetryBackoffBase, s.opts.RetryBackoffMax)
		slog.Warn("[BLE] connect timed out, retrying", "mac", s.address, "attempt", attempt+1, "delay", delay)
		if sleepErr := sleepContext(ctx, delay); sleepErr != nil {
			return err
		}
	}
}

// dialLocked performs a single connect attempt (caller must hold mu).
func (s *Session) dialLocked(ctx context.Context) error {
	s.setState(StateConnecting)

	if err := s.adapter.Enable(); err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("%w: enable adapter: %w", ErrConnection, err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	conn, err := s.adapter.Connect(dialCtx, s.address)
	if err != nil {
		s.setState(StateDisconnected)
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s after %s: %w", ErrConnectionTimeout, s.address, s.opts.ConnectTimeout, err)
		}
		return fmt.Errorf("%w: connect to %s: %w", ErrConnection, s.address, err)
	}

	// Fixtures drop writes that arrive right after link-up.
	if err := sleepContext(ctx, s.opts.SettleDelay); err != nil {
		_ = conn.Disconnect()
		s.setState(StateDisconnected)
		return fmt.Errorf("%w: settle %s: %w", ErrConnection, s.address, err)
	}

	s.gen++
	gen := s.gen
	conn.OnDisconnect(func() {
		// Transports may fire this while Disconnect holds mu.
		go s.linkLost(gen)
	})

	s.conn = conn
	s.chars = make(map[string]Characteristic)
	s.setState(StateConnected)
	slog.Info("[BLE] connected", "mac", s.address)
	return nil
}

// characteristicLocked resolves and caches a characteristic (caller must hold mu).
func (s *Session) characteristicLocked(charUUID string) (Characteristic, error) {
	key := strings.ToLower(charUUID)
	if char, ok := s.chars[key]; ok {
		return char, nil
	}
	char, err := s.conn.DiscoverCharacteristic(charUUID)
	if err != nil {
		return nil, fmt.Errorf("%w: discover %s on %s: %w", ErrConnection, charUUID, s.address, err)
	}
	s.chars[key] = char
	return char, nil
}

// linkLost handles a peripheral-initiated disconnect for link generation gen.
func (s *Session) linkLost(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.State() != StateConnected {
		return
	}
	s.dropLinkLocked()
	slog.Warn("[BLE] link lost", "mac", s.address)
}

// dropLinkLocked forgets the current link (caller must hold mu).
func (s *Session) dropLinkLocked() {
	s.conn = nil
	s.chars = nil
	s.setState(StateDisconnected)
}

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// backoffDelay returns the delay before retry attempt n: base doubled n
// times, capped at max.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	delay := base
	for i := 0; i < attempt && delay < max; i++ {
		delay *= 2
	}
	if delay > max {
		return max
	}
	return delay
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
