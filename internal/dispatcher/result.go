package dispatcher

import (
	"encoding/json"
	"errors"

	"github.com/teemow/meetmate/internal/model"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ReconnectMessage is reported when the user has no usable Google grant.
const ReconnectMessage = "The Google account is not connected or its authorization expired. Ask the user to send /connect to link their calendar again."

// Result is the structured outcome of one command. It is serialized into
// the tool-result message the agent sees next.
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// IsError reports whether the command failed.
func (r Result) IsError() bool {
	return r.Status != StatusSuccess
}

// JSON renders r for the conversation log.
func (r Result) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		fallback, _ := json.Marshal(Result{Status: StatusError, Message: "result could not be serialized: " + err.Error(), Kind: model.KindInternal})
		return string(fallback)
	}
	return string(b)
}

func success(data any) Result {
	return Result{Status: StatusSuccess, Data: data}
}

// ErrorResult converts err into an error Result classified by kind.
func ErrorResult(err error) Result {
	kind := model.ErrorKind(err)
	msg := err.Error()
	var auth *model.AuthExpiredError
	if errors.As(err, &auth) {
		msg = ReconnectMessage
	}
	return Result{Status: StatusError, Message: msg, Kind: kind}
}
