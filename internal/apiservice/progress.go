// Receives progress reports of long-running server functions over the
// progress hub websocket.

package apiservice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/recrovit/rgfclient/internal/models"
)

const (
	// ProgressHubEndpoint is the path of the progress hub.
	ProgressHubEndpoint = "/rgf/hub/progress"

	// recordSeparator terminates every hub protocol frame.
	recordSeparator = 0x1e

	pingInterval = 15 * time.Second
)

// Hub message types.
const (
	hubInvocation = 1
	hubPing       = 6
	hubClose      = 7
)

type negotiateResponse struct {
	ConnectionID    string `json:"connectionId"`
	ConnectionToken string `json:"connectionToken"`
}

type hubMessage struct {
	Type      int               `json:"type"`
	Target    string            `json:"target,omitempty"`
	Arguments []json.RawMessage `json:"arguments,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// ProgressClient is a connection to the progress hub. The server addresses
// progress reports to the connection id returned by Start.
type ProgressClient struct {
	client     *Client
	dialer     *websocket.Dialer
	onProgress func(models.ProgressArgs)

	mu           sync.Mutex
	conn         *websocket.Conn
	connectionID string
	stop         chan struct{}
	wg           sync.WaitGroup
}

// NewProgressClient returns a hub client calling fn for every progress
// report. fn runs on the receiving goroutine.
func (c *Client) NewProgressClient(fn func(models.ProgressArgs)) *ProgressClient {
	return &ProgressClient{client: c, dialer: websocket.DefaultDialer, onProgress: fn}
}

// ConnectionID returns the id of the current connection, or "".
func (p *ProgressClient) ConnectionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectionID
}

// Start negotiates a connection, completes the protocol handshake and starts
// receiving. It returns the connection id.
func (p *ProgressClient) Start(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		return p.connectionID, nil
	}
	neg := Post[negotiateResponse](ctx, p.client, &Request{
		URI:        ProgressHubEndpoint + "/negotiate",
		Query:      url.Values{"negotiateVersion": {"1"}},
		AuthClient: true,
	})
	if !neg.Success {
		return "", fmt.Errorf("failed to negotiate progress connection: %w", neg.Err)
	}
	token := neg.Result.ConnectionToken
	if token == "" {
		token = neg.Result.ConnectionID
	}

	u, err := hubURL(p.client.BaseAddress(), token)
	if err != nil {
		return "", err
	}
	header := http.Header{}
	for k, v := range p.client.ClientVersions() {
		header.Set(k, v)
	}
	if p.client.tokens.valid() {
		if t, err := p.client.tokens.Token(); err == nil {
			header.Set("Authorization", t.Type()+" "+t.AccessToken)
		}
	}
	conn, resp, err := p.dialer.DialContext(ctx, u, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return "", fmt.Errorf("failed to connect to progress hub: %w", err)
	}
	if err := handshake(conn); err != nil {
		_ = conn.Close()
		return "", err
	}

	p.conn = conn
	p.connectionID = neg.Result.ConnectionID
	p.stop = make(chan struct{})
	p.wg.Add(2)
	go p.receive(ctx, conn)
	go p.ping(conn, p.stop)
	p.client.logger.DebugContext(ctx, "Progress hub connected", "connection", p.connectionID)
	return p.connectionID, nil
}

// Close stops receiving and closes the connection.
func (p *ProgressClient) Close() error {
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.connectionID = ""
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
	p.mu.Unlock()
	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	err := conn.Close()
	p.wg.Wait()
	return err
}

func hubURL(base, token string) (string, error) {
	u, err := url.Parse(base + ProgressHubEndpoint)
	if err != nil {
		return "", fmt.Errorf("invalid progress hub address: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("id", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func handshake(conn *websocket.Conn) error {
	req := []byte(`{"protocol":"json","version":1}`)
	if err := conn.WriteMessage(websocket.TextMessage, append(req, recordSeparator)); err != nil {
		return fmt.Errorf("failed to send handshake: %w", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read handshake: %w", err)
	}
	for _, frame := range frames(data) {
		var msg hubMessage
		if err := json.Unmarshal(frame, &msg); err != nil {
			return fmt.Errorf("invalid handshake response: %w", err)
		}
		if msg.Error != "" {
			return fmt.Errorf("progress hub handshake rejected: %s", msg.Error)
		}
	}
	return nil
}

func frames(data []byte) [][]byte {
	var out [][]byte
	for _, f := range bytes.Split(data, []byte{recordSeparator}) {
		if len(bytes.TrimSpace(f)) != 0 {
			out = append(out, f)
		}
	}
	return out
}

func (p *ProgressClient) receive(ctx context.Context, conn *websocket.Conn) {
	defer p.wg.Done()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				p.client.logger.DebugContext(ctx, "Progress hub disconnected", "err", err)
			}
			return
		}
		for _, frame := range frames(data) {
			var msg hubMessage
			if err := json.Unmarshal(frame, &msg); err != nil {
				p.client.logger.WarnContext(ctx, "Invalid progress hub message", "err", err)
				continue
			}
			switch msg.Type {
			case hubInvocation:
				if !strings.EqualFold(msg.Target, "ReceiveProgress") || len(msg.Arguments) == 0 {
					continue
				}
				var args models.ProgressArgs
				if err := json.Unmarshal(msg.Arguments[0], &args); err != nil {
					p.client.logger.WarnContext(ctx, "Invalid progress report", "err", err)
					continue
				}
				if p.onProgress != nil {
					p.onProgress(args)
				}
			case hubClose:
				if msg.Error != "" {
					p.client.logger.WarnContext(ctx, "Progress hub closed the connection", "err", msg.Error)
				}
				return
			}
		}
	}
}

func (p *ProgressClient) ping(conn *websocket.Conn, stop <-chan struct{}) {
	defer p.wg.Done()
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	msg := append([]byte(fmt.Sprintf(`{"type":%d}`, hubPing)), recordSeparator)
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}
