package signal

import "time"

// Session names a trading session window in New York time.
type Session string

const (
	SessionAsian   Session = "asian"
	SessionLondon  Session = "london"
	SessionNewYork Session = "newyork"
	SessionOff     Session = "off"
)

// nyLocation is the IANA zone all session math resolves in. DST shifts
// the sessions correctly because hours are taken after conversion.
var nyLocation = mustLoadNY()

func mustLoadNY() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic("tzdata missing America/New_York: " + err.Error())
	}
	return loc
}

// sessionHours maps sessions to [start, end) hours in NY time.
var sessionHours = map[Session][2]int{
	SessionAsian:   {0, 8},
	SessionLondon:  {8, 16},
	SessionNewYork: {13, 21},
}

// ActiveSessions returns every session covering the instant. London and
// New York overlap between 13:00 and 16:00 NY.
func ActiveSessions(t time.Time) []Session {
	hour := t.In(nyLocation).Hour()
	var active []Session
	for _, s := range []Session{SessionAsian, SessionLondon, SessionNewYork} {
		h := sessionHours[s]
		if hour >= h[0] && hour < h[1] {
			active = append(active, s)
		}
	}
	return active
}

// CurrentSession returns the primary session for the instant; New York
// takes precedence during the London overlap.
func CurrentSession(t time.Time) Session {
	active := ActiveSessions(t)
	if len(active) == 0 {
		return SessionOff
	}
	for _, s := range active {
		if s == SessionNewYork {
			return s
		}
	}
	return active[len(active)-1]
}

// SessionValid reports whether any active session is in the allow-list.
func SessionValid(t time.Time, allowed []Session) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range ActiveSessions(t) {
		for _, w := range allowed {
			if a == w {
				return true
			}
		}
	}
	return false
}

// ParseSessions converts a comma-separated env value into sessions,
// dropping anything unrecognised.
func ParseSessions(names []string) []Session {
	var out []Session
	for _, n := range names {
		switch Session(n) {
		case SessionAsian, SessionLondon, SessionNewYork:
			out = append(out, Session(n))
		}
	}
	return out
}
