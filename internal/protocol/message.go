// Package protocol implements the line-oriented wire protocol spoken between
// the master, its workers, the discovery child, and remote masters.
//
// Every message is a single newline-terminated line whose first field is
// TOKEN=<hex>. A WORKER line is followed by a binary payload whose byte
// length is declared on the line. The master answers a mismatched token with
// a single "WRONG RUN" line and closes the connection.
package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Command identifies a parsed protocol command.
type Command string

const (
	CmdPop      Command = "POP"
	CmdSlave    Command = "SLAVE"
	CmdWorker   Command = "WORKER"
	CmdNewSuite Command = "NEW SUITE"
	CmdKaboom   Command = "KABOOM"
)

const (
	// WrongRunLine is the only reply a client with a foreign token receives.
	WrongRunLine = "WRONG RUN\n"

	// OKLine acknowledges a SLAVE handshake.
	OKLine = "OK\n"

	tokenPrefix = "TOKEN="
)

// Request is a parsed client → master message.
type Request struct {
	Token   string
	Command Command

	// SLAVE fields
	SlaveCount   int
	SlaveHost    string
	SlaveMessage string

	// WORKER field: declared payload byte length.
	PayloadSize int

	// NEW SUITE field
	Suite *SuitePair
}

// ParseRequest parses a single protocol line (with or without the trailing
// newline). The token is extracted but NOT verified; callers check it
// against the run token before acting.
func ParseRequest(line string) (*Request, error) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, tokenPrefix) {
		return nil, fmt.Errorf("protocol: line missing %s prefix", tokenPrefix)
	}
	rest := line[len(tokenPrefix):]
	sp := strings.IndexByte(rest, ' ')
	if sp < 0 {
		return nil, fmt.Errorf("protocol: line has token but no command")
	}
	req := &Request{Token: rest[:sp]}
	body := rest[sp+1:]

	switch {
	case body == string(CmdPop):
		req.Command = CmdPop

	case body == string(CmdKaboom):
		req.Command = CmdKaboom

	case strings.HasPrefix(body, string(CmdSlave)+" "):
		req.Command = CmdSlave
		fields := strings.SplitN(body[len(CmdSlave)+1:], " ", 3)
		if len(fields) < 2 {
			return nil, fmt.Errorf("protocol: SLAVE needs <count> <hostname>")
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("protocol: bad SLAVE worker count %q", fields[0])
		}
		req.SlaveCount = n
		req.SlaveHost = fields[1]
		if len(fields) == 3 {
			req.SlaveMessage = fields[2]
		}

	case strings.HasPrefix(body, string(CmdWorker)+" "):
		req.Command = CmdWorker
		n, err := strconv.Atoi(body[len(CmdWorker)+1:])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("protocol: bad WORKER payload size %q", body[len(CmdWorker)+1:])
		}
		req.PayloadSize = n

	case strings.HasPrefix(body, string(CmdNewSuite)+" "):
		req.Command = CmdNewSuite
		var pair SuitePair
		if err := json.Unmarshal([]byte(body[len(CmdNewSuite)+1:]), &pair); err != nil {
			return nil, fmt.Errorf("protocol: bad NEW SUITE payload: %w", err)
		}
		if pair.Name == "" || pair.Path == "" {
			return nil, fmt.Errorf("protocol: NEW SUITE pair missing name or path")
		}
		req.Suite = &pair

	default:
		return nil, fmt.Errorf("protocol: unknown command in %q", body)
	}

	return req, nil
}

// FormatLine builds an outbound protocol line for the given token and body.
func FormatLine(token, body string) string {
	return tokenPrefix + token + " " + body + "\n"
}
