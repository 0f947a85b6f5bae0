package jsonrpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"pifanctrl/log"
	"pifanctrl/util"
)

// TCPClient sends commands over one connection, redialing after errors.
type TCPClient struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	DialTimeout  time.Duration

	TxBytes     int
	RxBytes     int
	Errors      int
	RedialCount int
	LastErrorTS float64

	mx   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
}

func NewTCPClient(addr string) *TCPClient {
	return &TCPClient{
		Addr:         addr,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		DialTimeout:  time.Second,
	}
}

func (c *TCPClient) redial() error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	d := net.Dialer{Timeout: c.DialTimeout}
	conn, err := d.Dial("tcp", c.Addr)
	c.RedialCount++
	if err != nil {
		log.Debugf("can't connect to %s: %v", c.Addr, err)
		c.failed()
		return err
	}
	c.conn = conn
	c.r = bufio.NewReaderSize(conn, 4096)
	c.Errors = 0
	return nil
}

func (c *TCPClient) failed() {
	c.Errors++
	c.LastErrorTS = util.NowInSec()
}

func (c *TCPClient) sendAndReceive(req []byte) ([]byte, error) {
	if c.conn == nil || c.Errors > 0 {
		if err := c.redial(); err != nil {
			return nil, err
		}
	}
	if n := len(req); n > 0 && req[n-1] != '\n' {
		req = append(req, '\n')
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.WriteTimeout)); err != nil {
		log.Debugf("set write deadline: %v", err)
	}
	n, err := c.conn.Write(req)
	if err != nil {
		c.failed()
		return nil, fmt.Errorf("send: %w", err)
	}
	c.TxBytes += n

	if err := c.conn.SetReadDeadline(time.Now().Add(c.ReadTimeout)); err != nil {
		log.Debugf("set read deadline: %v", err)
	}
	reply, err := readLine(c.r)
	if err != nil {
		c.failed()
		return nil, fmt.Errorf("receive: %w", err)
	}
	c.RxBytes += len(reply)
	return reply, nil
}

// SendAndReceive writes one request line and returns the reply line. A
// failed exchange is retried once on a fresh connection, which covers a
// server that closes after each command.
func (c *TCPClient) SendAndReceive(req []byte) ([]byte, error) {
	c.mx.Lock()
	defer c.mx.Unlock()

	reply, err := c.sendAndReceive(req)
	if err != nil {
		reply, err = c.sendAndReceive(req)
	}
	return reply, err
}

// Call sends command with an optional parameter and decodes the reply.
// Result is left as raw JSON for the caller to decode.
func (c *TCPClient) Call(command string, parameter any) (*Response, json.RawMessage, error) {
	req := Request{Command: command}
	if parameter != nil {
		raw, err := json.Marshal(parameter)
		if err != nil {
			return nil, nil, err
		}
		req.Parameter = raw
	}
	buf, err := json.Marshal(req)
	if err != nil {
		return nil, nil, err
	}
	reply, err := c.SendAndReceive(buf)
	if err != nil {
		return nil, nil, err
	}

	var wire struct {
		Response
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(reply, &wire); err != nil {
		return nil, nil, fmt.Errorf("decode reply: %w", err)
	}
	resp := wire.Response
	if resp.Status != StatusOK {
		return &resp, wire.Result, fmt.Errorf("%s: %s", command, resp.Error)
	}
	return &resp, wire.Result, nil
}

func (c *TCPClient) Shutdown() {
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
