package realtime

import (
	"github.com/rs/zerolog"

	"github.com/tbourn/storehub-realtime/internal/domain"
)

func nopLog() zerolog.Logger { return zerolog.Nop() }

func newSess(id, user, tenant string, roles ...string) *Session {
	return NewSession(id, domain.Identity{UserID: user, TenantID: tenant, DisplayName: "name-" + user, Roles: roles}, 64)
}

// drain returns every queued event without blocking.
func drain(s *Session) []Event {
	var out []Event
	for {
		select {
		case e := <-s.Outbound():
			out = append(out, e)
		default:
			return out
		}
	}
}

// ofType filters events by type.
func ofType(events []Event, typ string) []Event {
	var out []Event
	for _, e := range events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
