package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"inferclient/internal/wire"
	"inferclient/pkg/types"
)

// maxErrorBody caps how much of a non-JSON error body is kept as message.
const maxErrorBody = 4 << 10

// call describes one HTTP round trip.
type call struct {
	op     string
	method string
	path   string
	// model scopes error classification; empty for server-wide calls.
	model           string
	body            []byte
	contentType     string
	header          http.Header
	reqCompression  string
	respCompression string
	timeout         time.Duration
	// probe returns non-2xx statuses to the caller instead of an error.
	probe bool
}

type result struct {
	status int
	header http.Header
	body   []byte
}

func (c *Client) do(ctx context.Context, cl call) (res result, err error) {
	start := time.Now()
	defer func() { observe(cl.op, start, err) }()

	timeout := cl.timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body := cl.body
	encoding := ""
	if len(body) > 0 {
		body, encoding, err = wire.Compress(cl.reqCompression, body)
		if err != nil {
			return result{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, rd)
	if err != nil {
		return result{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	for k, vs := range cl.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		ct := cl.contentType
		if ct == "" {
			ct = "application/json"
		}
		req.Header.Set("Content-Type", ct)
	}
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	if ae := wire.AcceptEncoding(cl.respCompression); ae != "" {
		req.Header.Set("Accept-Encoding", ae)
	}
	c.logRequest(cl, req, cl.body)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return result{}, TransportError{Op: cl.op, Err: err}
	}
	defer resp.Body.Close()
	raw, err := wire.ReadLimited(resp.Body, c.maxResp)
	if err != nil {
		return result{}, TransportError{Op: cl.op, Err: fmt.Errorf("read body: %w", err)}
	}
	plain, err := wire.Decompress(resp.Header.Get("Content-Encoding"), raw, c.maxResp)
	if err != nil {
		return result{}, TransportError{Op: cl.op, Err: err}
	}
	res = result{status: resp.StatusCode, header: resp.Header, body: plain}
	c.logResponse(cl, res, time.Since(start))

	if cl.probe || (res.status >= 200 && res.status < 300) {
		return res, nil
	}
	return res, classify(res.status, errorMessage(plain), cl.model)
}

// errorMessage extracts the "error" field of a JSON error body, falling back
// to the truncated body text.
func errorMessage(body []byte) string {
	var er types.ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
		return er.Error
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return strings.TrimSpace(string(body))
}

func (c *Client) getJSON(ctx context.Context, op, path, model string, out any) error {
	res, err := c.do(ctx, call{op: op, method: http.MethodGet, path: path, model: model})
	if err != nil {
		return err
	}
	return decodeJSON(res, op, out)
}

func (c *Client) event() *zerolog.Event {
	if c.verbose {
		return c.log.Info()
	}
	return c.log.Debug()
}

func (c *Client) logRequest(cl call, req *http.Request, body []byte) {
	ev := c.event()
	ev = ev.Str("op", cl.op).Str("method", req.Method).Str("url", req.URL.String())
	if len(body) > 0 {
		ev = ev.Int("bytes", len(body)).Str("body", preview(body))
	}
	if h := req.Header.Get("Content-Encoding"); h != "" {
		ev = ev.Str("content_encoding", h)
	}
	ev.Msg("request")
}

func (c *Client) logResponse(cl call, res result, took time.Duration) {
	c.event().Str("op", cl.op).
		Int("status", res.status).
		Int("bytes", len(res.body)).
		Dur("took", took).
		Str("body", preview(res.body)).
		Msg("response")
}

// preview renders a body for logs; binary sections are elided.
func preview(b []byte) string {
	const max = 512
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	s := string(b)
	if len(s) > max {
		s = s[:max] + "..."
	}
	if !isPrintable(s) {
		return fmt.Sprintf("<%d bytes>", len(b))
	}
	return s
}

func isPrintable(s string) bool {
	for _, r := range s {
		if r == '\n' || r == '\t' || r == '\r' {
			continue
		}
		if r < 0x20 || r == 0xfffd {
			return false
		}
	}
	return true
}
