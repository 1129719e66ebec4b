package signal

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teemow/meetmate/internal/model"
)

// fakeRunner records invocations and replays canned output.
type fakeRunner struct {
	mu     sync.Mutex
	calls  [][]string
	stdout []string
	stderr string
	err    error
}

func (f *fakeRunner) run(_ context.Context, args ...string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, args)
	out := ""
	if len(f.stdout) > 0 {
		out = f.stdout[0]
		f.stdout = f.stdout[1:]
	}
	return out, f.stderr, f.err
}

func newTestClient(t *testing.T, r *fakeRunner) *Client {
	t.Helper()
	c, err := NewClient("+15551234567", WithRunner(r.run))
	if err != nil {
		t.Fatalf("NewClient() unexpected error = %v", err)
	}
	return c
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name      string
		account   string
		wantErr   bool
		errString string
	}{
		{
			name:    "valid phone number",
			account: "+15551234567",
		},
		{
			name:      "empty account",
			account:   "",
			wantErr:   true,
			errString: "account cannot be empty",
		},
		{
			name:      "missing plus sign",
			account:   "15551234567",
			wantErr:   true,
			errString: "must be a phone number starting with +",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.account, WithRunner((&fakeRunner{}).run))

			if tt.wantErr {
				if err == nil {
					t.Errorf("NewClient() expected error containing %q, got nil", tt.errString)
				} else if !strings.Contains(err.Error(), tt.errString) {
					t.Errorf("NewClient() error = %v, want error containing %q", err, tt.errString)
				}
				return
			}

			if err != nil {
				t.Fatalf("NewClient() unexpected error = %v", err)
			}
			if client.Account() != tt.account {
				t.Errorf("Account() = %v, want %v", client.Account(), tt.account)
			}
		})
	}
}

func TestSend(t *testing.T) {
	tests := []struct {
		name      string
		recipient string
		text      string
		runErr    error
		wantErr   string
		wantCall  bool
	}{
		{name: "valid", recipient: "+15559876543", text: "hi", wantCall: true},
		{name: "empty recipient", recipient: "", text: "hi", wantErr: "recipient cannot be empty"},
		{name: "empty text", recipient: "+15559876543", text: "", wantErr: "message cannot be empty"},
		{name: "not a phone number", recipient: "bob", text: "hi", wantErr: "starting with +"},
		{name: "signal-cli fails", recipient: "+15559876543", text: "hi", runErr: errors.New("exit status 1"), wantErr: "failed to send message", wantCall: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRunner{err: tt.runErr, stderr: "Unregistered user"}
			err := newTestClient(t, r).Send(context.Background(), tt.recipient, tt.text)

			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Send() unexpected error = %v", err)
				}
			} else {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Send() error = %v, want containing %q", err, tt.wantErr)
				}
				if model.ErrorKind(err) != model.KindProvider {
					t.Errorf("Send() error kind = %q, want %q", model.ErrorKind(err), model.KindProvider)
				}
				var serr *SignalError
				if !errors.As(err, &serr) {
					t.Errorf("Send() error should wrap *SignalError")
				}
			}

			if got := len(r.calls) > 0; got != tt.wantCall {
				t.Fatalf("signal-cli called = %v, want %v", got, tt.wantCall)
			}
			if tt.wantCall {
				want := []string{"-a", "+15551234567", "send", tt.recipient, "-m", tt.text}
				if strings.Join(r.calls[0], " ") != strings.Join(want, " ") {
					t.Errorf("args = %v, want %v", r.calls[0], want)
				}
			}
		})
	}
}

const receiveOutput = `{"envelope":{"source":"+15550001111","sourceNumber":"+15550001111","sourceName":"Ana","timestamp":1777900000000,"dataMessage":{"timestamp":1777900000000,"message":"book the dentist"}},"account":"+15551234567"}
{"envelope":{"source":"+15550002222","sourceNumber":"+15550002222","timestamp":1777900001000,"receiptMessage":{"isDelivery":true}},"account":"+15551234567"}
not json
{"envelope":{"source":"uuid-123","sourceNumber":"+15550003333","timestamp":1777900002000,"dataMessage":{"message":"hello team","groupInfo":{"groupId":"grp==","type":"DELIVER"}}},"account":"+15551234567"}
`

func TestReceive(t *testing.T) {
	r := &fakeRunner{stdout: []string{receiveOutput}}
	msgs, err := newTestClient(t, r).Receive(context.Background(), 5*time.Second)
	if err != nil {
		t.Fatalf("Receive() unexpected error = %v", err)
	}

	want := []Message{
		{Sender: "+15550001111", SenderName: "Ana", Text: "book the dentist", Timestamp: time.UnixMilli(1777900000000).UTC()},
		{Sender: "+15550003333", Text: "hello team", GroupID: "grp==", Timestamp: time.UnixMilli(1777900002000).UTC()},
	}
	if len(msgs) != len(want) {
		t.Fatalf("Receive() got %d messages, want %d: %+v", len(msgs), len(want), msgs)
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, msgs[i], want[i])
		}
	}

	args := strings.Join(r.calls[0], " ")
	if args != "-a +15551234567 -o json receive --timeout 5" {
		t.Errorf("args = %q", args)
	}
}

func TestReceiveErrors(t *testing.T) {
	c := newTestClient(t, &fakeRunner{})
	if _, err := c.Receive(context.Background(), 0); err == nil {
		t.Error("Receive() with zero timeout should fail")
	}

	c = newTestClient(t, &fakeRunner{err: errors.New("exit status 2"), stderr: "Config file is in use"})
	_, err := c.Receive(context.Background(), time.Second)
	var serr *SignalError
	if !errors.As(err, &serr) || serr.Op != "receive" {
		t.Fatalf("Receive() error = %v, want *SignalError for receive", err)
	}
}

func TestReceiveMessagesStopsOnCancel(t *testing.T) {
	r := &fakeRunner{stdout: []string{receiveOutput}}
	c := newTestClient(t, r)

	ctx, cancel := context.WithCancel(context.Background())
	var got []string
	err := c.ReceiveMessages(ctx, time.Second, func(_ context.Context, m Message) {
		got = append(got, m.Text)
		if len(got) == 2 {
			cancel()
		}
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ReceiveMessages() error = %v, want context.Canceled", err)
	}
	if strings.Join(got, "|") != "book the dentist|hello team" {
		t.Errorf("delivered = %v", got)
	}
}

func TestSignalError(t *testing.T) {
	base := errors.New("boom")
	tests := []struct {
		name string
		err  *SignalError
		want string
	}{
		{"with account", &SignalError{Op: "send", Account: "+1555", Err: base}, "signal send (account: +1555): boom"},
		{"without account", &SignalError{Op: "receive", Err: base}, "signal receive: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.want {
				t.Errorf("Error() = %q, want %q", tt.err.Error(), tt.want)
			}
			if !errors.Is(tt.err, base) {
				t.Error("Unwrap() should expose the cause")
			}
		})
	}
}
