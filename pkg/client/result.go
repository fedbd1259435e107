package client

import (
	"encoding/json"
	"fmt"
)

// ResultKind tags the outcome of a Call.
type ResultKind int

const (
	// ResultOK is a 2xx response.
	ResultOK ResultKind = iota
	// ResultSessionExpired means the server rejected the token with 401/403
	// and the session was logged out.
	ResultSessionExpired
	// ResultRequestFailed is any other non-2xx response, or a request that
	// could not be built.
	ResultRequestFailed
	// ResultNetworkError means no response was obtained.
	ResultNetworkError
	// ResultUnauthenticated means the call required a session and there was none.
	ResultUnauthenticated
	// ResultStale means the session changed while the request was in flight;
	// the response must not be applied.
	ResultStale
)

func (k ResultKind) String() string {
	switch k {
	case ResultOK:
		return "ok"
	case ResultSessionExpired:
		return "session expired"
	case ResultRequestFailed:
		return "request failed"
	case ResultNetworkError:
		return "network error"
	case ResultUnauthenticated:
		return "unauthenticated"
	case ResultStale:
		return "stale"
	default:
		return fmt.Sprintf("ResultKind(%d)", int(k))
	}
}

// Result is the classified outcome of a Call.
type Result struct {
	Kind       ResultKind
	StatusCode int
	// Message is the server-provided message on ResultRequestFailed.
	Message string
	// Body is the raw response body on ResultOK.
	Body []byte
	Err  error
}

// OK reports whether the call succeeded.
func (r Result) OK() bool { return r.Kind == ResultOK }

// Decode parses the JSON body of a successful result into out.
func (r Result) Decode(out any) error {
	if r.Kind != ResultOK {
		return fmt.Errorf("client.Result.Decode: result is %s", r.Kind)
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("client.Result.Decode: %w", err)
	}
	return nil
}
