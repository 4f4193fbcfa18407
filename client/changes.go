package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"contentfeed/models"
)

// streamConn dials a single connection for a change stream and can close it
// from another goroutine
type streamConn struct {
	dial fasthttp.DialFunc

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

func (s *streamConn) Dial(addr string) (net.Conn, error) {
	conn, err := s.dial(addr)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		conn.Close()
		return nil, net.ErrClosed
	}
	s.conn = conn
	return conn, nil
}

func (s *streamConn) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.conn != nil {
		s.conn.Close()
	}
}

// Changes follows the collection's change stream and calls fn for every
// event until ctx ends or the server closes the stream.
func (c *Collection) Changes(ctx context.Context, fn func(models.ChangeEvent)) error {
	sc := &streamConn{dial: c.client.dial}
	if sc.dial == nil {
		sc.dial = fasthttp.Dial
	}
	hc := &fasthttp.Client{
		Name:               "contentfeed",
		Dial:               sc.Dial,
		StreamResponseBody: true,
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	// the connection is closed before the response is released, an open
	// stream would otherwise be drained
	stop := context.AfterFunc(ctx, sc.Close)
	defer stop()
	defer sc.Close()

	req.SetRequestURI(c.client.baseURL + c.path("/changes"))
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "text/event-stream")

	requestsTotal.WithLabelValues(fasthttp.MethodGet).Inc()
	if err := hc.Do(req, resp); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	if status := resp.StatusCode(); status >= fasthttp.StatusBadRequest {
		return &StatusError{Code: status, Message: errorMessage(resp.Body())}
	}

	body := resp.BodyStream()
	if body == nil {
		body = bytes.NewReader(resp.Body())
	}

	err := readEvents(body, func(event, data string) {
		switch event {
		case "init":
			log.WithFields(log.Fields{
				"collection": c.name,
				"client":     data,
			}).Info("Subscribed to change stream")
		case "change":
			var evt models.ChangeEvent
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				log.WithField("error", err).Warn("Skipping malformed change event")
				return
			}
			fn(evt)
		}
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// readEvents splits a server-sent event stream into (event, data) pairs
func readEvents(r io.Reader, fn func(event, data string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var event string
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if event != "" || len(data) > 0 {
				fn(event, strings.Join(data, "\n"))
			}
			event, data = "", nil
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return scanner.Err()
}
