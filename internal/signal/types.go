package signal

import (
	"fmt"
	"time"
)

// Message is an inbound text message.
type Message struct {
	// Sender is the phone number of the sender (e.g. "+15551234567").
	Sender string

	// SenderName is the sender's Signal profile name, if known.
	SenderName string

	// Text is the message body.
	Text string

	// GroupID is set when the message was sent to a group.
	GroupID string

	// Timestamp is when the sender sent the message.
	Timestamp time.Time
}

// SignalError represents an error that occurred during Signal operations
type SignalError struct {
	// Op is the operation that failed (e.g., "send", "receive")
	Op string

	// Account is the signal-cli account the operation ran as
	Account string

	// Err is the underlying error
	Err error
}

// Error implements the error interface
func (e *SignalError) Error() string {
	if e.Account != "" {
		return fmt.Sprintf("signal %s (account: %s): %v", e.Op, e.Account, e.Err)
	}
	return fmt.Sprintf("signal %s: %v", e.Op, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *SignalError) Unwrap() error {
	return e.Err
}

// envelope is one line of `signal-cli -o json receive`.
type envelope struct {
	Envelope struct {
		Source       string `json:"source"`
		SourceNumber string `json:"sourceNumber"`
		SourceName   string `json:"sourceName"`
		Timestamp    int64  `json:"timestamp"`
		DataMessage  *struct {
			Message   string `json:"message"`
			GroupInfo *struct {
				GroupID string `json:"groupId"`
			} `json:"groupInfo"`
		} `json:"dataMessage"`
	} `json:"envelope"`
}
