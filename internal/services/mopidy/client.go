package mopidy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"figurespeaker/internal/logging"
	"figurespeaker/internal/services"
	"figurespeaker/internal/session"
)

const readLimit = 8 << 20

// Options configures a Mopidy client.
type Options struct {
	// CallTimeout bounds each JSON-RPC round-trip. Zero disables it.
	CallTimeout time.Duration
	Logger      *slog.Logger
}

// Client speaks Mopidy's JSON-RPC 2.0 API over a websocket.
type Client struct {
	conn    *websocket.Conn
	timeout time.Duration
	logger  *slog.Logger

	nextID  atomic.Int64
	mu      sync.Mutex
	pending map[int64]chan rpcResponse

	healthy   atomic.Bool
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
	cancel    context.CancelFunc
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	Event   string          `json:"event"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type track struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

// Dial connects to the Mopidy websocket endpoint.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrProtocol, "mopidy", "dial", url, err)
	}
	conn.SetReadLimit(readLimit)

	readCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:    conn,
		timeout: opts.CallTimeout,
		logger:  logging.NewComponentLogger(opts.Logger, "mopidy"),
		pending: make(map[int64]chan rpcResponse),
		closed:  make(chan struct{}),
		cancel:  cancel,
	}
	c.healthy.Store(true)
	go c.readLoop(readCtx)
	return c, nil
}

// Dialer adapts Dial to session.Dialer.
func Dialer(url string, opts Options) session.Dialer {
	return func(ctx context.Context) (session.Controller, error) {
		return Dial(ctx, url, opts)
	}
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		var msg rpcResponse
		if err := wsjson.Read(ctx, c.conn, &msg); err != nil {
			c.fail(err)
			return
		}
		if msg.Event != "" {
			c.logger.Debug("mopidy event", logging.String("event", msg.Event))
			continue
		}
		if msg.ID == nil {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[*msg.ID]
		delete(c.pending, *msg.ID)
		c.mu.Unlock()
		if ok {
			ch <- msg
		}
	}
}

func (c *Client) fail(err error) {
	c.closeOnce.Do(func() {
		c.closeErr = err
		c.healthy.Store(false)
		close(c.closed)
		if !errors.Is(err, net.ErrClosed) && !errors.Is(err, context.Canceled) {
			c.logger.Info("mopidy connection lost",
				logging.Error(err),
				logging.Event("mopidy_disconnect"),
			)
		}
	})
}

func (c *Client) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Call performs a JSON-RPC round-trip and decodes the result into out when non-nil.
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	if !c.healthy.Load() {
		return services.Wrap(services.ErrProtocol, "mopidy", method, "connection closed", c.closeErr)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	id := c.nextID.Add(1)
	ch := make(chan rpcResponse, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	if err := wsjson.Write(ctx, c.conn, req); err != nil {
		c.forget(id)
		return services.Wrap(services.ErrProtocol, "mopidy", method, "send request", err)
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return services.Wrap(services.ErrProtocol, "mopidy", method,
				fmt.Sprintf("rpc error %d: %s", resp.Error.Code, resp.Error.Message), nil)
		}
		if out == nil || len(resp.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return services.Wrap(services.ErrProtocol, "mopidy", method, "decode result", err)
		}
		return nil
	case <-c.closed:
		c.forget(id)
		return services.Wrap(services.ErrProtocol, "mopidy", method, "connection closed", c.closeErr)
	case <-ctx.Done():
		c.forget(id)
		return services.Wrap(services.ErrProtocol, "mopidy", method, "no response", ctx.Err())
	}
}

func (c *Client) ClearQueue(ctx context.Context) error {
	return c.Call(ctx, "core.tracklist.clear", nil, nil)
}

// Lookup resolves uri through the library. Albums and playlists expand to
// their tracks.
func (c *Client) Lookup(ctx context.Context, uri string) (session.Item, error) {
	var result map[string][]track
	if err := c.Call(ctx, "core.library.lookup", map[string]any{"uris": []string{uri}}, &result); err != nil {
		return session.Item{}, err
	}
	tracks := result[uri]
	if len(tracks) == 0 {
		return session.Item{}, services.Wrap(services.ErrNotFound, "mopidy", "core.library.lookup", "no tracks for "+uri, nil)
	}
	item := session.Item{URI: uri, Name: tracks[0].Name, TrackURIs: make([]string, 0, len(tracks))}
	for _, t := range tracks {
		item.TrackURIs = append(item.TrackURIs, t.URI)
	}
	return item, nil
}

func (c *Client) Enqueue(ctx context.Context, item session.Item) error {
	uris := item.TrackURIs
	if len(uris) == 0 {
		uris = []string{item.URI}
	}
	return c.Call(ctx, "core.tracklist.add", map[string]any{"uris": uris}, nil)
}

func (c *Client) SetVolume(ctx context.Context, volume int) error {
	return c.Call(ctx, "core.mixer.set_volume", map[string]any{"volume": volume}, nil)
}

func (c *Client) Play(ctx context.Context) error {
	return c.Call(ctx, "core.playback.play", nil, nil)
}

func (c *Client) Seek(ctx context.Context, position time.Duration) error {
	return c.Call(ctx, "core.playback.seek", map[string]any{"time_position": position.Milliseconds()}, nil)
}

func (c *Client) Pause(ctx context.Context) error {
	return c.Call(ctx, "core.playback.pause", nil, nil)
}

func (c *Client) Resume(ctx context.Context) error {
	return c.Call(ctx, "core.playback.resume", nil, nil)
}

func (c *Client) Stop(ctx context.Context) error {
	return c.Call(ctx, "core.playback.stop", nil, nil)
}

func (c *Client) Position(ctx context.Context) (time.Duration, error) {
	var ms *int64
	if err := c.Call(ctx, "core.playback.get_time_position", nil, &ms); err != nil {
		return 0, err
	}
	if ms == nil {
		return 0, nil
	}
	return time.Duration(*ms) * time.Millisecond, nil
}

func (c *Client) State(ctx context.Context) (session.PlaybackState, error) {
	var state string
	if err := c.Call(ctx, "core.playback.get_state", nil, &state); err != nil {
		return "", err
	}
	switch session.PlaybackState(state) {
	case session.StatePlaying, session.StatePaused:
		return session.PlaybackState(state), nil
	default:
		return session.StateStopped, nil
	}
}

func (c *Client) Healthy() bool {
	return c.healthy.Load()
}

// Close shuts the websocket down. Pending calls fail with a protocol error.
func (c *Client) Close() error {
	if err := c.conn.Close(websocket.StatusNormalClosure, "closing"); err != nil {
		c.logger.Debug("mopidy close handshake failed", logging.Error(err))
	}
	c.cancel()
	c.fail(net.ErrClosed)
	return nil
}
