// Package http supplies a concrete session.Transport that speaks a simple
// wire contract: POST the RunAgentInput as JSON, read the response as a
// Server-Sent Events stream of wire events, falling back to a plain JSON
// array body when the response isn't text/event-stream. It is provided as
// a runnable reference transport, not as part of the core's test surface —
// the core only depends on the session.Transport interface.
package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"goa.design/ag-ui-go/aguierrors"
	"goa.design/ag-ui-go/events"
	"goa.design/ag-ui-go/messages"
	"goa.design/ag-ui-go/session"
	"goa.design/ag-ui-go/telemetry"
)

// Transport posts RunAgentInput to a fixed URL and streams the SSE response.
type Transport struct {
	url    string
	client *http.Client
	header http.Header
	logger telemetry.Logger
}

// Option configures a Transport.
type Option func(*Transport)

// WithHTTPClient overrides the *http.Client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(t *Transport) { t.client = client }
}

// WithHeader sets a header sent on every request (e.g. Authorization).
func WithHeader(key, value string) Option {
	return func(t *Transport) { t.header.Set(key, value) }
}

// WithLogger attaches a logger used for isolated per-event decode failures.
func WithLogger(logger telemetry.Logger) Option {
	return func(t *Transport) { t.logger = logger }
}

// New constructs a Transport posting to url.
func New(url string, opts ...Option) *Transport {
	t := &Transport{
		url:    url,
		client: http.DefaultClient,
		header: make(http.Header),
		logger: telemetry.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartRun issues the POST and begins streaming the response in a
// background goroutine.
func (t *Transport) StartRun(ctx context.Context, input session.RunAgentInput) (session.RunSession, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, aguierrors.NewTransportConnection("encode run input", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(runCtx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, aguierrors.NewTransportConnection("build request", err)
	}
	req.Header = t.header.Clone()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := t.client.Do(req)
	if err != nil {
		cancel()
		return nil, aguierrors.NewTransportConnection("send request", err)
	}

	rs := &runSession{
		resp:   resp,
		cancel: cancel,
		logger: t.logger,
		evts:   make(chan events.Event, 16),
		active: true,
	}
	go rs.pump()
	return rs, nil
}

type runSession struct {
	resp   *http.Response
	cancel context.CancelFunc
	logger telemetry.Logger

	evts chan events.Event

	mu     sync.Mutex
	active bool

	closeOnce sync.Once
}

func (rs *runSession) Events() <-chan events.Event { return rs.evts }

func (rs *runSession) IsActive() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.active
}

// SendMessage has no meaning for a one-shot HTTP POST transport: follow-up
// messages reach the agent only through a new run (ContinueConversation, or
// SendToolResponse under ContextStrategyFullHistory). It is implemented to
// satisfy the interface and always fails, so SendToolResponse under
// ContextStrategySingleMessage fails over this transport.
func (rs *runSession) SendMessage(context.Context, messages.Message) error {
	return aguierrors.NewSessionClosed()
}

func (rs *runSession) Close() error {
	rs.closeOnce.Do(func() {
		rs.mu.Lock()
		rs.active = false
		rs.mu.Unlock()
		rs.cancel()
	})
	return nil
}

func (rs *runSession) pump() {
	defer close(rs.evts)
	defer rs.resp.Body.Close()
	defer func() {
		rs.mu.Lock()
		rs.active = false
		rs.mu.Unlock()
	}()

	contentType := rs.resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/event-stream") {
		rs.pumpSSE()
		return
	}
	rs.pumpJSONArray()
}

func (rs *runSession) pumpSSE() {
	scanner := bufio.NewScanner(rs.resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var dataLines []string
	flush := func() {
		if len(dataLines) == 0 {
			return
		}
		payload := strings.Join(dataLines, "\n")
		dataLines = dataLines[:0]
		rs.emitRaw([]byte(payload))
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// Other SSE fields (event:, id:, retry:, comments) carry no
			// information the core needs.
		}
	}
	flush()
}

func (rs *runSession) pumpJSONArray() {
	body, err := io.ReadAll(rs.resp.Body)
	if err != nil {
		rs.emitTransportError(aguierrors.NewTransportParsing("read response body", err))
		return
	}
	evts, err := events.DecodeArray(body)
	if err != nil {
		rs.emitTransportError(aguierrors.NewTransportParsing("decode event array", err))
		return
	}
	for _, evt := range evts {
		rs.evts <- evt
	}
}

func (rs *runSession) emitRaw(payload []byte) {
	evt, err := events.EventFromJSON(payload)
	if err != nil {
		rs.logger.Warn(context.Background(), "skipping unparsable SSE frame", "error", err)
		return
	}
	rs.evts <- evt
}

func (rs *runSession) emitTransportError(err error) {
	code := "TRANSPORT_ERROR"
	rs.evts <- events.NewRunErrorEvent(fmt.Sprintf("transport error: %v", err), &code)
}
