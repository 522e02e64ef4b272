package gateway

import (
	"errors"
	"fmt"
)

// Message turns an error from Solve into the text shown to the user
func Message(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrCancelled) {
		return "Request cancelled"
	}

	var reqErr *ErrRequestFailed
	if !errors.As(err, &reqErr) {
		return err.Error()
	}

	switch reqErr.Kind {
	case KindNetwork:
		return "Network error. Check backend URL and connectivity."
	case KindTimeout:
		return "Request timed out. The solver took too long to answer."
	case KindInvalidResponse:
		return "Invalid response from server"
	case KindServer:
		if reqErr.ServerMessage != "" {
			return reqErr.ServerMessage
		}
		if reqErr.StatusCode != 0 {
			return fmt.Sprintf("Server error (%d)", reqErr.StatusCode)
		}
	}
	return "Unknown error"
}

// IsCancelled reports whether err is a caller cancellation
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
