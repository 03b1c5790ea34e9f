package session

import (
	"time"

	"github.com/rizal/tether/pkg/protocol"
)

// startKeepAliveLocked starts the liveness loop for the current connection.
// The loop runs if and only if the session is Connected.
func (s *Session) startKeepAliveLocked() {
	s.stopKeepAliveLocked()

	stop := make(chan struct{})
	s.keepAliveStop = stop

	go s.keepAliveLoop(stop)
}

// stopKeepAliveLocked stops the liveness loop, if running.
func (s *Session) stopKeepAliveLocked() {
	if s.keepAliveStop != nil {
		close(s.keepAliveStop)
		s.keepAliveStop = nil
	}
}

func (s *Session) keepAliveLoop(stop chan struct{}) {
	ticker := time.NewTicker(s.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.Send(protocol.NewPing()); err != nil {
				// Socket went away; the close handler stops this loop.
				return
			}
			if s.metrics != nil {
				s.metrics.KeepAlivePingsTotal.Inc()
			}
			s.logger.Debug().Msg("Sent keep-alive ping")
		}
	}
}
