package protocol

import (
	"strings"
	"testing"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Request
		wantErr bool
	}{
		{
			name: "pop",
			line: "TOKEN=abc123 POP\n",
			want: Request{Token: "abc123", Command: CmdPop},
		},
		{
			name: "kaboom",
			line: "TOKEN=abc123 KABOOM",
			want: Request{Token: "abc123", Command: CmdKaboom},
		},
		{
			name: "slave without message",
			line: "TOKEN=abc123 SLAVE 4 worker-host-1\n",
			want: Request{Token: "abc123", Command: CmdSlave, SlaveCount: 4, SlaveHost: "worker-host-1"},
		},
		{
			name: "slave with message",
			line: "TOKEN=abc123 SLAVE 2 hostA ready to serve\n",
			want: Request{
				Token: "abc123", Command: CmdSlave,
				SlaveCount: 2, SlaveHost: "hostA", SlaveMessage: "ready to serve",
			},
		},
		{
			name: "worker",
			line: "TOKEN=abc123 WORKER 1024\n",
			want: Request{Token: "abc123", Command: CmdWorker, PayloadSize: 1024},
		},
		{
			name: "worker zero payload",
			line: "TOKEN=abc123 WORKER 0\n",
			want: Request{Token: "abc123", Command: CmdWorker, PayloadSize: 0},
		},
		{
			name: "new suite",
			line: `TOKEN=abc123 NEW SUITE {"name":"TestLogin","path":"auth/login_test.rb"}` + "\n",
			want: Request{
				Token: "abc123", Command: CmdNewSuite,
				Suite: &SuitePair{Name: "TestLogin", Path: "auth/login_test.rb"},
			},
		},
		{
			name:    "missing token prefix",
			line:    "POP\n",
			wantErr: true,
		},
		{
			name:    "token without command",
			line:    "TOKEN=abc123\n",
			wantErr: true,
		},
		{
			name:    "unknown command",
			line:    "TOKEN=abc123 FROB\n",
			wantErr: true,
		},
		{
			name:    "slave missing hostname",
			line:    "TOKEN=abc123 SLAVE 4\n",
			wantErr: true,
		},
		{
			name:    "slave zero count",
			line:    "TOKEN=abc123 SLAVE 0 host\n",
			wantErr: true,
		},
		{
			name:    "worker bad size",
			line:    "TOKEN=abc123 WORKER lots\n",
			wantErr: true,
		},
		{
			name:    "worker negative size",
			line:    "TOKEN=abc123 WORKER -5\n",
			wantErr: true,
		},
		{
			name:    "new suite bad json",
			line:    "TOKEN=abc123 NEW SUITE {not json}\n",
			wantErr: true,
		},
		{
			name:    "new suite empty name",
			line:    `TOKEN=abc123 NEW SUITE {"name":"","path":"x"}` + "\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRequest(tt.line)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseRequest(%q) = %+v, want error", tt.line, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRequest(%q) error: %v", tt.line, err)
			}
			if got.Token != tt.want.Token {
				t.Errorf("Token = %q, want %q", got.Token, tt.want.Token)
			}
			if got.Command != tt.want.Command {
				t.Errorf("Command = %q, want %q", got.Command, tt.want.Command)
			}
			if got.SlaveCount != tt.want.SlaveCount {
				t.Errorf("SlaveCount = %d, want %d", got.SlaveCount, tt.want.SlaveCount)
			}
			if got.SlaveHost != tt.want.SlaveHost {
				t.Errorf("SlaveHost = %q, want %q", got.SlaveHost, tt.want.SlaveHost)
			}
			if got.SlaveMessage != tt.want.SlaveMessage {
				t.Errorf("SlaveMessage = %q, want %q", got.SlaveMessage, tt.want.SlaveMessage)
			}
			if got.PayloadSize != tt.want.PayloadSize {
				t.Errorf("PayloadSize = %d, want %d", got.PayloadSize, tt.want.PayloadSize)
			}
			if (got.Suite == nil) != (tt.want.Suite == nil) {
				t.Fatalf("Suite = %v, want %v", got.Suite, tt.want.Suite)
			}
			if got.Suite != nil && *got.Suite != *tt.want.Suite {
				t.Errorf("Suite = %+v, want %+v", *got.Suite, *tt.want.Suite)
			}
		})
	}
}

func TestFormatLineRoundTrip(t *testing.T) {
	line := FormatLine("deadbeef", "POP")
	if !strings.HasSuffix(line, "\n") {
		t.Fatalf("FormatLine output %q missing newline", line)
	}
	req, err := ParseRequest(line)
	if err != nil {
		t.Fatalf("ParseRequest(FormatLine...) error: %v", err)
	}
	if req.Token != "deadbeef" || req.Command != CmdPop {
		t.Errorf("round trip got token=%q cmd=%q", req.Token, req.Command)
	}
}
