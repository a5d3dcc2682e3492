package mpd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	gompd "github.com/fhs/gompd/v2/mpd"

	"figurespeaker/internal/logging"
	"figurespeaker/internal/services"
	"figurespeaker/internal/session"
)

// Client controls an MPD-protocol engine (stock MPD or Mopidy-MPD).
//
// MPD drops idle clients after its connection_timeout, so a command that
// fails with a connection error is retried once on a fresh connection. A
// command still running when ctx ends is abandoned along with its
// connection; the client reports unhealthy until a later call redials.
type Client struct {
	network  string
	address  string
	password string

	mu     sync.Mutex
	conn   *gompd.Client
	broken atomic.Bool
	closed bool
	logger *slog.Logger
}

func dialConn(network, address, password string) (*gompd.Client, error) {
	if password != "" {
		return gompd.DialAuthenticated(network, address, password)
	}
	return gompd.Dial(network, address)
}

// Dial connects to address. Addresses starting with "/" are unix sockets.
func Dial(ctx context.Context, address, password string, logger *slog.Logger) (*Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	network := "tcp"
	if strings.HasPrefix(address, "/") {
		network = "unix"
	}
	conn, err := dialConn(network, address, password)
	if err != nil {
		return nil, services.Wrap(services.ErrProtocol, "mpd", "dial", address, err)
	}
	return &Client{
		network:  network,
		address:  address,
		password: password,
		conn:     conn,
		logger:   logging.NewComponentLogger(logger, "mpd"),
	}, nil
}

// Dialer adapts Dial to session.Dialer.
func Dialer(address, password string, logger *slog.Logger) session.Dialer {
	return func(ctx context.Context) (session.Controller, error) {
		return Dial(ctx, address, password, logger)
	}
}

func isConnectionError(err error) bool {
	var netErr net.Error
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.As(err, &netErr)
}

// redial replaces the connection. Callers hold c.mu.
func (c *Client) redial() error {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	conn, err := dialConn(c.network, c.address, c.password)
	if err != nil {
		c.broken.Store(true)
		return err
	}
	c.conn = conn
	c.broken.Store(false)
	return nil
}

// call runs fn on the current connection until it returns or ctx ends.
// gompd has no deadlines, so on cancellation the connection is handed to a
// goroutine that closes it once fn returns. Callers hold c.mu.
func (c *Client) call(ctx context.Context, fn func(*gompd.Client) error) error {
	conn := c.conn
	done := make(chan error, 1)
	go func() { done <- fn(conn) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		c.conn = nil
		c.broken.Store(true)
		go func() {
			<-done
			_ = conn.Close()
		}()
		return ctx.Err()
	}
}

func (c *Client) do(ctx context.Context, op string, fn func(*gompd.Client) error) error {
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrProtocol, "mpd", op, "cancelled", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return services.Wrap(services.ErrProtocol, "mpd", op, "connection closed", nil)
	}
	if c.conn == nil || c.broken.Load() {
		if err := c.redial(); err != nil {
			return services.Wrap(services.ErrProtocol, "mpd", op, "reconnect", err)
		}
	}
	err := c.call(ctx, fn)
	if err != nil && ctx.Err() == nil && isConnectionError(err) {
		c.logger.Info("mpd connection lost; reconnecting",
			logging.Error(err),
			logging.String("address", c.address),
			logging.Event("mpd_reconnect"),
		)
		if dialErr := c.redial(); dialErr != nil {
			return services.Wrap(services.ErrProtocol, "mpd", op, "reconnect", errors.Join(err, dialErr))
		}
		err = c.call(ctx, fn)
	}
	if err == nil {
		return nil
	}
	if isConnectionError(err) {
		c.broken.Store(true)
		c.logger.Info("mpd connection lost",
			logging.Error(err),
			logging.Event("mpd_disconnect"),
		)
	}
	return services.Wrap(services.ErrProtocol, "mpd", op, "", err)
}

func (c *Client) ClearQueue(ctx context.Context) error {
	return c.do(ctx, "clear", func(conn *gompd.Client) error { return conn.Clear() })
}

// Lookup lists the songs below uri. URIs with a scheme that MPD cannot list
// (for example spotify:album:...) are passed through as a single entry.
func (c *Client) Lookup(ctx context.Context, uri string) (session.Item, error) {
	var attrs []gompd.Attrs
	err := c.do(ctx, "listallinfo", func(conn *gompd.Client) error {
		var listErr error
		attrs, listErr = conn.ListAllInfo(uri)
		return listErr
	})
	if err != nil {
		if c.broken.Load() || ctx.Err() != nil || isConnectionError(err) {
			return session.Item{}, err
		}
		if hasScheme(uri) {
			return session.Item{URI: uri, TrackURIs: []string{uri}}, nil
		}
		return session.Item{}, services.Wrap(services.ErrNotFound, "mpd", "listallinfo", "no songs for "+uri, err)
	}

	item := session.Item{URI: uri}
	for _, entry := range attrs {
		file := entry["file"]
		if file == "" {
			continue
		}
		if item.Name == "" {
			item.Name = entry["Title"]
		}
		item.TrackURIs = append(item.TrackURIs, file)
	}
	if len(item.TrackURIs) == 0 {
		return session.Item{}, services.Wrap(services.ErrNotFound, "mpd", "listallinfo", "no songs for "+uri, nil)
	}
	return item, nil
}

func hasScheme(uri string) bool {
	scheme, _, ok := strings.Cut(uri, ":")
	return ok && scheme != "" && !strings.Contains(scheme, "/")
}

func (c *Client) Enqueue(ctx context.Context, item session.Item) error {
	uris := item.TrackURIs
	if len(uris) == 0 {
		uris = []string{item.URI}
	}
	return c.do(ctx, "add", func(conn *gompd.Client) error {
		for _, uri := range uris {
			if err := conn.Add(uri); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *Client) SetVolume(ctx context.Context, volume int) error {
	return c.do(ctx, "setvol", func(conn *gompd.Client) error { return conn.SetVolume(volume) })
}

func (c *Client) Play(ctx context.Context) error {
	return c.do(ctx, "play", func(conn *gompd.Client) error { return conn.Play(-1) })
}

func (c *Client) Seek(ctx context.Context, position time.Duration) error {
	return c.do(ctx, "seekcur", func(conn *gompd.Client) error { return conn.SeekCur(position, false) })
}

func (c *Client) Pause(ctx context.Context) error {
	return c.do(ctx, "pause", func(conn *gompd.Client) error { return conn.Pause(true) })
}

func (c *Client) Resume(ctx context.Context) error {
	return c.do(ctx, "pause", func(conn *gompd.Client) error { return conn.Pause(false) })
}

func (c *Client) Stop(ctx context.Context) error {
	return c.do(ctx, "stop", func(conn *gompd.Client) error { return conn.Stop() })
}

func (c *Client) status(ctx context.Context) (gompd.Attrs, error) {
	var attrs gompd.Attrs
	err := c.do(ctx, "status", func(conn *gompd.Client) error {
		var statusErr error
		attrs, statusErr = conn.Status()
		return statusErr
	})
	return attrs, err
}

func (c *Client) Position(ctx context.Context) (time.Duration, error) {
	attrs, err := c.status(ctx)
	if err != nil {
		return 0, err
	}
	elapsed := attrs["elapsed"]
	if elapsed == "" {
		return 0, nil
	}
	seconds, err := strconv.ParseFloat(elapsed, 64)
	if err != nil {
		return 0, services.Wrap(services.ErrProtocol, "mpd", "status", "parse elapsed "+elapsed, err)
	}
	return time.Duration(seconds * float64(time.Second)).Round(time.Millisecond), nil
}

func (c *Client) State(ctx context.Context) (session.PlaybackState, error) {
	attrs, err := c.status(ctx)
	if err != nil {
		return "", err
	}
	switch attrs["state"] {
	case "play":
		return session.StatePlaying, nil
	case "pause":
		return session.StatePaused, nil
	default:
		return session.StateStopped, nil
	}
}

// Healthy reports false after Close, after a cancelled call and after a
// failed reconnect. It does not round-trip to the server.
func (c *Client) Healthy() bool {
	return !c.broken.Load()
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.broken.Store(true)
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if err != nil && !isConnectionError(err) {
		return err
	}
	return nil
}
