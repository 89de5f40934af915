package meater

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	defaultDeviceName     = "MEATER"
	defaultConnectTimeout = 10 * time.Second
	defaultBackoffBase    = time.Second
	defaultBackoffMax     = 30 * time.Second
	defaultEventBuffer    = 16
)

// ErrInvalidConfig is returned when the session cannot resolve a target
// device from its configuration
var ErrInvalidConfig = errors.New("invalid session configuration")

// Session owns the link to a single probe and drives its lifecycle, emitting
// decoded readings and link state changes on its event stream. A lost link is
// re-established with capped, growing backoff.
type Session struct {
	identity DeviceIdentity

	transport      Transport
	connectTimeout time.Duration
	backoffBase    time.Duration
	backoffMax     time.Duration

	events  chan Event
	battery float64

	// wait implementation, replaceable for deterministic scheduling
	sleep func(ctx context.Context, d time.Duration) error

	logger Logger
}

// NewSession instantiates a new Session, executing functional options, if any
func NewSession(options ...func(*Session)) (*Session, error) {

	// Initialize a new instance of a Session
	s := &Session{
		identity:       DeviceIdentity{Name: defaultDeviceName},
		connectTimeout: defaultConnectTimeout,
		backoffBase:    defaultBackoffBase,
		backoffMax:     defaultBackoffMax,
		events:         make(chan Event, defaultEventBuffer),
		sleep:          sleepCtx,
		logger:         &NullLogger{},
	}

	// Execute functional options (if any), see options.go for implementation
	for _, option := range options {
		option(s)
	}

	// Initialize a BLE transport (if not provided as option)
	if s.transport == nil {
		transport, err := NewBLETransport(WithBLELogger(s.logger))
		if err != nil {
			return nil, err
		}
		s.transport = transport
	}

	return s, nil
}

// Events returns the session's event stream. The channel is closed once Run
// returns.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Run drives the link state machine until ctx is cancelled or the session
// configuration turns out to be unusable. It is the sole owner of the
// connection and must not be invoked concurrently.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.events)

	if !s.identity.Valid() {
		err := fmt.Errorf("%w: no device name or address", ErrInvalidConfig)
		s.setStatus(StateFailed, err)
		return err
	}

	s.setStatus(StateDisconnected, nil)

	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.setStatus(StateConnecting, nil)
		conn, err := s.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			s.logger.Warnf("failed to connect probe %s: %s", s.identity, err)
			attempt++
			if err := s.reconnectWait(ctx, attempt, err); err != nil {
				return err
			}
			continue
		}

		s.logger.Infof("connected probe %s, info: %+v", s.identity, conn.Info())
		s.setStatus(StateConnected, nil)

		delivered, streamErr := s.stream(ctx, conn)
		if closeErr := conn.Close(); closeErr != nil {
			s.logger.Warnf("failed to release connection: %s", closeErr)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Only a link that actually carried telemetry resets the backoff,
		// a connect that drops right away keeps growing the delay
		if delivered {
			attempt = 0
		}
		attempt++

		s.logger.Warnf("lost connection to probe %s: %s", s.identity, streamErr)
		if err := s.reconnectWait(ctx, attempt, streamErr); err != nil {
			return err
		}
	}
}

// connect performs one bounded discovery / connect / subscribe attempt
func (s *Session) connect(ctx context.Context) (Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	return s.transport.Connect(ctx, s.identity)
}

// stream consumes frames until the connection terminates or ctx is
// cancelled, reporting whether at least one frame arrived and why the
// stream ended
func (s *Session) stream(ctx context.Context, conn Conn) (bool, error) {
	delivered := false
	for {
		select {
		case <-ctx.Done():
			return delivered, ctx.Err()
		case frame, ok := <-conn.Frames():
			if !ok {
				err := conn.Err()
				if err == nil {
					err = ErrLinkLost
				}
				return delivered, err
			}

			delivered = true
			s.handleFrame(frame)
		}
	}
}

func (s *Session) handleFrame(frame Frame) {
	switch frame.Kind {
	case FrameTemperature:
		sample, err := DecodeTemperature(frame.Data)
		if err != nil {
			s.logger.Warnf("discarding frame: %s", err)
			s.emit(DecodeFailedEvent{Err: err})
			return
		}
		s.emit(ReadingEvent{Reading: newReading(sample, s.battery)})
	case FrameBattery:
		battery, err := DecodeBattery(frame.Data)
		if err != nil {
			s.logger.Warnf("discarding frame: %s", err)
			s.emit(DecodeFailedEvent{Err: err})
			return
		}
		s.battery = battery
	default:
		s.emit(DecodeFailedEvent{
			Err: fmt.Errorf("%w: unknown frame kind %d", ErrMalformedFrame, frame.Kind),
		})
	}
}

// reconnectWait announces the Reconnecting state and waits out the backoff
// delay for the given consecutive attempt, honoring cancellation
func (s *Session) reconnectWait(ctx context.Context, attempt int, cause error) error {
	s.setStatus(StateReconnecting, cause)

	delay := s.backoffDelay(attempt)
	s.logger.Debugf("waiting %s before reconnect attempt %d", delay, attempt+1)

	return s.sleep(ctx, delay)
}

// backoffDelay doubles the base delay per consecutive failed attempt, capped
// at the configured maximum
func (s *Session) backoffDelay(attempt int) time.Duration {
	delay := s.backoffBase
	for i := 1; i < attempt && delay < s.backoffMax; i++ {
		delay *= 2
	}

	return min(delay, s.backoffMax)
}

func (s *Session) setStatus(state State, err error) {
	s.emit(StateChangeEvent{Status: ConnectionStatus{
		State: state,
		Error: err,
	}})
}

// emit enqueues an event, dropping the oldest queued one when the consumer
// has fallen behind
func (s *Session) emit(ev Event) {
	for {
		select {
		case s.events <- ev:
			return
		default:
		}

		select {
		case <-s.events:
		default:
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
