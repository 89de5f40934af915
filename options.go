package meater

import "time"

// WithDeviceID sets the Bluetooth device address of the probe
func WithDeviceID(deviceID string) func(*Session) {
	return func(s *Session) {
		s.identity.Address = deviceID
	}
}

// WithDeviceName sets the advertised Bluetooth name of the probe
func WithDeviceName(deviceName string) func(*Session) {
	return func(s *Session) {
		s.identity.Name = deviceName
	}
}

// WithTransport sets the transport used to reach the probe
func WithTransport(transport Transport) func(*Session) {
	return func(s *Session) {
		s.transport = transport
	}
}

// WithLogger sets a logger
func WithLogger(logger Logger) func(*Session) {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithConnectTimeout bounds every discovery / connect / subscribe attempt
func WithConnectTimeout(timeout time.Duration) func(*Session) {
	return func(s *Session) {
		if timeout > 0 {
			s.connectTimeout = timeout
		}
	}
}

// WithBackoff sets the base and maximum delay between reconnect attempts.
// The delay doubles on consecutive failures until it reaches the maximum.
func WithBackoff(base, max time.Duration) func(*Session) {
	return func(s *Session) {
		if base > 0 {
			s.backoffBase = base
		}
		if max > 0 {
			s.backoffMax = max
		}
	}
}

// WithEventBuffer sets the capacity of the event stream. When the consumer
// falls behind, the oldest queued event is dropped in favour of new ones.
func WithEventBuffer(size int) func(*Session) {
	return func(s *Session) {
		if size > 0 {
			s.events = make(chan Event, size)
		}
	}
}
