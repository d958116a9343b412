package session

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid"
)

var _ Session = (*SimpleSession)(nil)

// SimpleSession implements Session with ulid.ULID identities directly.
//
// The teacher's version of this file imported
// internal/lockclient/id.ID for these three fields, but that package
// does not exist anywhere in the retrieved source. Since session.go's
// own Session interface already commits to ulid.ULID, SimpleSession is
// rebuilt against that type directly rather than reintroducing the
// missing indirection.
type SimpleSession struct {
	sessionID ulid.ULID
	clientID  ulid.ULID
	processID ulid.ULID
}

// SessionID returns the sessionID of the SimpleSession.
func (s *SimpleSession) SessionID() ulid.ULID { return s.sessionID }

// ClientID returns the clientID of the SimpleSession.
func (s *SimpleSession) ClientID() ulid.ULID { return s.clientID }

// ProcessID returns the processID of the SimpleSession.
func (s *SimpleSession) ProcessID() ulid.ULID { return s.processID }

// NewSession returns a new instance of a session with the given parameters.
func NewSession(sessionID, clientID, processID ulid.ULID) Session {
	return &SimpleSession{
		sessionID: sessionID,
		clientID:  clientID,
		processID: processID,
	}
}

// New returns a fresh SimpleSession: a new session ID, a new client ID,
// and a process ID shared by every session this process creates.
func New() Session {
	return NewSession(newULID(), newULID(), processULID)
}

// String renders a Session's session ID for wire use (e.g. an
// X-Session-ID header).
func String(s Session) string { return s.SessionID().String() }

var processULID = newULID()

func newULID() ulid.ULID {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader)
}
