package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) call(method string, req, resp any) error {
	return c.client.Call(ServiceName+"."+method, req, resp)
}

// Stop asks the daemon process to shut down.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.call("Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Engine starts, stops or restarts the playback engine.
func (c *Client) Engine(action string) (*EngineResponse, error) {
	var resp EngineResponse
	if err := c.call("Engine", EngineRequest{Action: action}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PlayTag plays a figure by tag.
func (c *Client) PlayTag(tag string) (*PlayResponse, error) {
	var resp PlayResponse
	if err := c.call("Play", PlayRequest{Tag: tag}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PlayURI plays an engine URI from the given offset.
func (c *Client) PlayURI(uri string, position time.Duration) (*PlayResponse, error) {
	var resp PlayResponse
	if err := c.call("Play", PlayRequest{URI: uri, PositionMS: position.Milliseconds()}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Playback drives the transport.
func (c *Client) Playback(req PlaybackRequest) (*PlaybackResponse, error) {
	var resp PlaybackResponse
	if err := c.call("Playback", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Volume applies a volume request.
func (c *Client) Volume(req VolumeRequest) (*VolumeResponse, error) {
	var resp VolumeResponse
	if err := c.call("Volume", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VolumeSettings reads or replaces the persisted volume tuple.
func (c *Client) VolumeSettings(req VolumeSettingsRequest) (*VolumeSettingsResponse, error) {
	var resp VolumeSettingsResponse
	if err := c.call("VolumeSettings", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FigureList lists configured figures.
func (c *Client) FigureList() (*FigureListResponse, error) {
	var resp FigureListResponse
	if err := c.call("FigureList", FigureListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FigureSave creates or replaces a figure.
func (c *Client) FigureSave(fig Figure) (*FigureSaveResponse, error) {
	var resp FigureSaveResponse
	if err := c.call("FigureSave", FigureSaveRequest{Figure: fig}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FigureDelete removes a figure.
func (c *Client) FigureDelete(tag string) (*FigureDeleteResponse, error) {
	var resp FigureDeleteResponse
	if err := c.call("FigureDelete", FigureDeleteRequest{Tag: tag}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetLogLevel changes the daemon log level at runtime.
func (c *Client) SetLogLevel(level string) (*LogLevelResponse, error) {
	var resp LogLevelResponse
	if err := c.call("SetLogLevel", LogLevelRequest{Level: level}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
