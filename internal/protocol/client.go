package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// ErrWrongRun reports that the server rejected our token. The run the client
// belongs to is not the run the server is coordinating.
var ErrWrongRun = errors.New("protocol: wrong run token")

// Client opens one connection per request against a master endpoint. Each
// protocol exchange is a fresh dial so the master never tracks sessions.
type Client struct {
	Endpoint Endpoint
	Token    string

	// DialTimeout bounds each connect attempt. Zero means no limit.
	DialTimeout time.Duration
}

func (c *Client) dial() (net.Conn, error) {
	d := net.Dialer{Timeout: c.DialTimeout}
	conn, err := d.Dial(c.Endpoint.Network, c.Endpoint.Addr)
	if err != nil {
		return nil, fmt.Errorf("protocol: dial %s: %w", c.Endpoint, err)
	}
	return conn, nil
}

// roundTrip sends one line and returns the entire response body. The server
// signals end-of-response by closing its side.
func (c *Client) roundTrip(body string) ([]byte, error) {
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if _, err := io.WriteString(conn, FormatLine(c.Token, body)); err != nil {
		return nil, fmt.Errorf("protocol: write %s: %w", strings.Fields(body)[0], err)
	}
	reply, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("protocol: read reply: %w", err)
	}
	if string(reply) == WrongRunLine {
		return nil, ErrWrongRun
	}
	return reply, nil
}

// PopSuite asks the master for the next suite.
func (c *Client) PopSuite() (PopReply, error) {
	reply, err := c.roundTrip(string(CmdPop))
	if err != nil {
		return PopReply{}, err
	}
	return DecodePopReply(reply)
}

// SendNewSuite reports one discovered suite to the master.
func (c *Client) SendNewSuite(pair SuitePair) error {
	b, err := EncodePopSuite(pair)
	if err != nil {
		return err
	}
	_, err = c.roundTrip(string(CmdNewSuite) + " " + string(b))
	return err
}

// Slave performs the remote-master handshake, announcing count workers on
// host. The optional message is logged by the primary; newlines are stripped
// so the handshake stays one line.
func (c *Client) Slave(count int, host, message string) error {
	body := fmt.Sprintf("%s %d %s", CmdSlave, count, host)
	if message != "" {
		body += " " + strings.NewReplacer("\n", " ", "\r", " ").Replace(message)
	}
	reply, err := c.roundTrip(body)
	if err != nil {
		return err
	}
	if string(reply) != OKLine {
		return fmt.Errorf("protocol: SLAVE handshake got %q, want OK", string(reply))
	}
	return nil
}

// SendWorkerRecord forwards one finalized worker record as a WORKER message
// with its declared payload size.
func (c *Client) SendWorkerRecord(rec *WorkerRecord) error {
	payload, err := EncodeWorkerRecord(rec)
	if err != nil {
		return err
	}
	conn, err := c.dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	line := FormatLine(c.Token, string(CmdWorker)+" "+strconv.Itoa(len(payload)))
	if _, err := io.WriteString(conn, line); err != nil {
		return fmt.Errorf("protocol: write WORKER line: %w", err)
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("protocol: write WORKER payload: %w", err)
	}
	reply, err := io.ReadAll(conn)
	if err != nil {
		return fmt.Errorf("protocol: read WORKER reply: %w", err)
	}
	if string(reply) == WrongRunLine {
		return ErrWrongRun
	}
	return nil
}

// SendKaboom tells the master to abort the run.
func (c *Client) SendKaboom() error {
	_, err := c.roundTrip(string(CmdKaboom))
	return err
}

// ReadPayload reads exactly size bytes of framed payload following a WORKER
// line from a buffered server-side reader.
func ReadPayload(r *bufio.Reader, size int) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("protocol: read %d-byte payload: %w", size, err)
	}
	return buf, nil
}
