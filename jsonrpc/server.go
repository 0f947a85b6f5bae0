package jsonrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"pifanctrl/log"
)

// Request is one line of the command protocol. Parameter is a JSON value
// whose shape depends on the command; numbers may also be sent as strings.
type Request struct {
	Command   string          `json:"command"`
	Parameter json.RawMessage `json:"parameter,omitempty"`
}

const (
	StatusOK    = "ok"
	StatusError = "error"
)

type Response struct {
	Status  string `json:"status"`
	Command string `json:"command"`
	Error   string `json:"error,omitempty"`
	Result  any    `json:"result,omitempty"`
}

type HandlerFunc func(ctx context.Context, req *Request) *Response

const maxLine = 65536

type Server struct {
	listener      net.Listener
	handler       HandlerFunc
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	KeepAlive     bool
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	HandleTimeout time.Duration

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer listens on addr. Without keepalive every connection carries a
// single command, like the cgminer style API.
func NewServer(addr string, handler HandlerFunc, keepAlive bool) (*Server, error) {
	if handler == nil {
		return nil, errors.New("jsonrpc: nil handler")
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		listener:      l,
		handler:       handler,
		ctx:           ctx,
		cancel:        cancel,
		KeepAlive:     keepAlive,
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  5 * time.Second,
		HandleTimeout: 10 * time.Second,
		conns:         make(map[net.Conn]struct{}),
	}, nil
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// ListenAndServe accepts connections until Shutdown is called.
func (s *Server) ListenAndServe() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return nil
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				log.Errorf("accept: %v", err)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.track(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

// Shutdown stops accepting, closes open connections and waits for running
// handlers until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	s.listener.Close()

	s.mu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	log.Debug("connection from ", conn.RemoteAddr())

	r := bufio.NewReaderSize(conn, 4096)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.ReadTimeout)); err != nil {
			log.Debugf("set read deadline: %v", err)
		}
		line, err := readLine(r)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Debugf("read from %v: %v", conn.RemoteAddr(), err)
			}
			return
		}
		if len(line) == 0 {
			continue
		}

		resp := s.serve(line)
		buf, err := PrepareJSONResponse(resp)
		if err != nil {
			buf, _ = PrepareJSONResponse(Failure(resp.Command, err))
		}
		if err := conn.SetWriteDeadline(time.Now().Add(s.WriteTimeout)); err != nil {
			log.Debugf("set write deadline: %v", err)
		}
		if _, err := conn.Write(buf); err != nil {
			log.Errorf("write to %v: %v", conn.RemoteAddr(), err)
			return
		}
		if !s.KeepAlive {
			return
		}
	}
}

func (s *Server) serve(line []byte) (resp *Response) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Failure("", fmt.Errorf("malformed request: %w", err))
	}

	defer func() {
		if p := recover(); p != nil {
			log.Errorf("command %q panicked: %v", req.Command, p)
			resp = Failure(req.Command, fmt.Errorf("internal error"))
		}
	}()

	ctx, cancel := context.WithTimeout(s.ctx, s.HandleTimeout)
	defer cancel()
	resp = s.handler(ctx, &req)
	if resp == nil {
		resp = Success(req.Command, nil)
	}
	return resp
}

// readLine reads up to the next newline. A line that does not fit in
// maxLine is an error.
func readLine(r *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			if len(line) > 0 && errors.Is(err, io.EOF) {
				return line, nil
			}
			return nil, err
		}
		line = append(line, chunk...)
		if len(line) > maxLine {
			return nil, fmt.Errorf("request exceeds %d bytes", maxLine)
		}
		if !isPrefix {
			return line, nil
		}
	}
}

func Success(command string, result any) *Response {
	return &Response{Status: StatusOK, Command: command, Result: result}
}

func Failure(command string, err error) *Response {
	return &Response{Status: StatusError, Command: command, Error: err.Error()}
}
