package feed

import "sync"

// ErrorCode classifies feed operation failures for the last-error state.
type ErrorCode int

const (
	CodeSuccess ErrorCode = iota
	CodeConnectFailed
	CodeNotConnected
	CodeSubscribeFailed
	CodeUnsubscribeFailed
	CodeTimeout
	CodeClosed
	CodeProtocol
)

// String returns the display name for the code.
func (c ErrorCode) String() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeConnectFailed:
		return "connect failed"
	case CodeNotConnected:
		return "not connected"
	case CodeSubscribeFailed:
		return "subscribe failed"
	case CodeUnsubscribeFailed:
		return "unsubscribe failed"
	case CodeTimeout:
		return "timeout"
	case CodeClosed:
		return "closed"
	case CodeProtocol:
		return "protocol error"
	}
	return "unknown"
}

// LastError is the most recent failure recorded on a Conn.
// A zero LastError (CodeSuccess) means no error information is stored.
type LastError struct {
	Code        ErrorCode
	Description string
}

// lastErrorState holds the per-connection last-error slot.
type lastErrorState struct {
	mu  sync.Mutex
	err LastError
}

func (s *lastErrorState) set(code ErrorCode, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = LastError{Code: code, Description: err.Error()}
}

func (s *lastErrorState) get() LastError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
