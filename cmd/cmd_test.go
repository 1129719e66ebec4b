package cmd

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/fatih/color"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReplier struct {
	mu   sync.Mutex
	seen []string
}

func (r *recordingReplier) HandleIncomingMessage(_ context.Context, userID, text string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, userID+":"+text)
	return "echo " + text
}

func TestRunChat(t *testing.T) {
	color.NoColor = true

	tests := []struct {
		name     string
		input    string
		wantSeen []string
		wantOut  []string
		notOut   []string
	}{
		{
			name:     "replies until EOF",
			input:    "hello\nbook lunch tomorrow\n",
			wantSeen: []string{"+15550001:hello", "+15550001:book lunch tomorrow"},
			wantOut:  []string{"meetmate> echo hello", "meetmate> echo book lunch tomorrow"},
		},
		{
			name:     "skips blank lines",
			input:    "\n   \nhi\n",
			wantSeen: []string{"+15550001:hi"},
			wantOut:  []string{"meetmate> echo hi"},
		},
		{
			name:     "quit stops reading",
			input:    "first\n/quit\nsecond\n",
			wantSeen: []string{"+15550001:first"},
			wantOut:  []string{"meetmate> echo first"},
			notOut:   []string{"echo second"},
		},
		{
			name:     "exit is an alias",
			input:    "/exit\n",
			wantSeen: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recordingReplier{}
			var out bytes.Buffer

			err := runChat(context.Background(), r, "+15550001", strings.NewReader(tt.input), &out)
			require.NoError(t, err)

			assert.Equal(t, tt.wantSeen, r.seen)
			assert.Contains(t, out.String(), "Chatting as +15550001")
			for _, want := range tt.wantOut {
				assert.Contains(t, out.String(), want)
			}
			for _, unwanted := range tt.notOut {
				assert.NotContains(t, out.String(), unwanted)
			}
		})
	}
}

// blockingReader never returns, like an idle terminal.
type blockingReader struct{ done chan struct{} }

func (b blockingReader) Read([]byte) (int, error) {
	<-b.done
	return 0, context.Canceled
}

func TestRunChatStopsOnCancel(t *testing.T) {
	color.NoColor = true

	in := blockingReader{done: make(chan struct{})}
	defer close(in.done)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := runChat(ctx, &recordingReplier{}, "u1", in, &out)
	assert.NoError(t, err)
}

func TestGetCategoryFromToolName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"create_appointment", "Appointment Tools"},
		{"list_appointments", "Appointment Tools"},
		{"delete_all_appointments", "Appointment Tools"},
		{"send_email", "Email Tools"},
		{"something_else", "Other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getCategoryFromToolName(tt.name))
		})
	}
}

func TestGenerateToolsMarkdown(t *testing.T) {
	tools := []mcp.Tool{
		mcp.NewTool("send_email",
			mcp.WithDescription("Send an email"),
			mcp.WithString("to", mcp.Required(), mcp.Description("Recipient address")),
		),
		mcp.NewTool("list_appointments",
			mcp.WithDescription("List appointments"),
			mcp.WithString("start_date", mcp.Description("First day")),
		),
	}

	md := generateToolsMarkdown(tools)

	assert.Contains(t, md, "# Tools Reference")
	assert.Contains(t, md, "- [Appointment Tools](#appointment-tools)")
	assert.Contains(t, md, "- [Email Tools](#email-tools)")
	assert.Contains(t, md, "### list_appointments")
	assert.Contains(t, md, "- `to` (string, required): Recipient address")
	assert.Contains(t, md, "- `start_date` (string, optional): First day")
	assert.Less(t, strings.Index(md, "## Appointment Tools"), strings.Index(md, "## Email Tools"))
}

func TestGenerateDocsListsEveryOperation(t *testing.T) {
	cmd := newGenerateDocsCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())

	for _, name := range []string{
		"create_appointment",
		"list_appointments",
		"update_appointment",
		"delete_appointment",
		"delete_all_appointments",
		"send_email",
	} {
		assert.Contains(t, out.String(), "### "+name)
	}
}

func TestVersionCmd(t *testing.T) {
	SetVersion("1.2.3")
	t.Cleanup(func() { SetVersion("dev") })

	cmd := newVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "meetmate version 1.2.3\n", out.String())
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "sweep", "chat", "connect", "mcp", "gen-key", "generate-docs", "version"} {
		assert.True(t, names[want], "missing command %q", want)
	}

	for _, flag := range []string{"debug", "log-format", "env-file"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), "missing flag %q", flag)
	}
}

func TestRequiredUserFlags(t *testing.T) {
	for _, c := range []string{"chat", "connect", "mcp"} {
		t.Run(c, func(t *testing.T) {
			sub, _, err := rootCmd.Find([]string{c})
			require.NoError(t, err)
			flag := sub.Flags().Lookup("user")
			require.NotNil(t, flag)
			assert.Contains(t, flag.Annotations, "cobra_annotation_bash_completion_one_required_flag")
		})
	}
}

func TestMCPDefaults(t *testing.T) {
	cmd := newMCPCmd()
	assert.Equal(t, "stdio", cmd.Flags().Lookup("transport").DefValue)
	assert.Equal(t, "false", cmd.Flags().Lookup("yolo").DefValue)
}
