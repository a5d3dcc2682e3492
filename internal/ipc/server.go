package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"figurespeaker/internal/daemon"
	"figurespeaker/internal/logging"
	"figurespeaker/internal/playback"
	"figurespeaker/internal/volume"
)

// ServiceName is the RPC service the daemon registers.
const ServiceName = "FigureSpeaker"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: serverCtx}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

// call derives a per-request context carrying the ipc trigger. Engine
// operations can wait for the readiness marker, so the bound is generous.
func (s *service) call() (context.Context, context.CancelFunc) {
	ctx := daemon.Trigger(s.ctx, "ipc")
	return context.WithTimeout(ctx, 2*time.Minute)
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Info("daemon stop requested via IPC",
		logging.Event("daemon_stop_requested"))
	s.daemon.RequestShutdown()
	resp.Stopping = true
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	ctx, cancel := s.call()
	defer cancel()
	*resp = fromDaemonStatus(s.daemon.Status(ctx))
	resp.APIAddress = s.daemon.APIAddress()
	return nil
}

func (s *service) Engine(req EngineRequest, resp *EngineResponse) error {
	ctx, cancel := s.call()
	defer cancel()
	var err error
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "start":
		err = s.daemon.StartEngine(ctx)
	case "stop":
		err = s.daemon.StopEngine(ctx)
	case "restart":
		err = s.daemon.RestartEngine(ctx)
	default:
		return fmt.Errorf("unknown engine action %q", req.Action)
	}
	resp.Engine = fromEngineStatus(s.daemon.Engine().Status())
	return err
}

func (s *service) Play(req PlayRequest, resp *PlayResponse) error {
	ctx, cancel := s.call()
	defer cancel()
	var (
		played *playback.Request
		err    error
	)
	if strings.TrimSpace(req.Tag) != "" {
		played, err = s.daemon.PlayTag(ctx, req.Tag)
	} else {
		played, err = s.daemon.PlayURI(ctx, req.URI, time.Duration(req.PositionMS)*time.Millisecond)
	}
	if err != nil {
		return err
	}
	resp.Played = played != nil
	resp.Request = fromRequest(played)
	return nil
}

func (s *service) Playback(req PlaybackRequest, resp *PlaybackResponse) error {
	ctx, cancel := s.call()
	defer cancel()
	var err error
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "stop":
		err = s.daemon.StopPlayback(ctx)
	case "toggle":
		err = s.daemon.TogglePause(ctx)
	case "pause":
		err = s.daemon.Pause(ctx)
	case "resume":
		err = s.daemon.Resume(ctx)
	case "forwards":
		err = s.daemon.Wind(ctx, playback.WindForwards)
	case "rewind":
		err = s.daemon.Wind(ctx, playback.WindRewind)
	case "seek":
		err = s.daemon.Seek(ctx, time.Duration(req.PositionMS)*time.Millisecond)
	default:
		return fmt.Errorf("unknown playback action %q", req.Action)
	}
	if err != nil {
		return err
	}
	status, err := s.daemon.PlaybackStatus(ctx)
	if err != nil {
		return err
	}
	resp.Playback = fromPlaybackStatus(status)
	return nil
}

func (s *service) Volume(req VolumeRequest, resp *VolumeResponse) error {
	ctx, cancel := s.call()
	defer cancel()
	var (
		result volume.Result
		err    error
	)
	if req.Level != nil {
		result, err = s.daemon.SetVolume(ctx, *req.Level)
	} else {
		direction, parseErr := volume.ParseDirection(req.Direction)
		if parseErr != nil {
			return parseErr
		}
		result, err = s.daemon.ChangeVolume(ctx, direction)
	}
	if err != nil {
		return err
	}
	*resp = fromVolumeResult(result)
	return nil
}

func (s *service) VolumeSettings(req VolumeSettingsRequest, resp *VolumeSettingsResponse) error {
	ctx, cancel := s.call()
	defer cancel()
	if req.Update {
		updated, err := s.daemon.UpdateVolumeSettings(ctx, req.Settings.toSettings())
		if err != nil {
			return err
		}
		resp.Settings = fromVolumeSettings(updated)
		return nil
	}
	current, err := s.daemon.VolumeSettings(ctx)
	if err != nil {
		return err
	}
	resp.Settings = fromVolumeSettings(current)
	return nil
}

func (s *service) FigureList(_ FigureListRequest, resp *FigureListResponse) error {
	ctx, cancel := s.call()
	defer cancel()
	figs, err := s.daemon.ListFigures(ctx)
	if err != nil {
		return err
	}
	resp.Figures = make([]Figure, 0, len(figs))
	for _, fig := range figs {
		resp.Figures = append(resp.Figures, fromFigure(fig))
	}
	return nil
}

func (s *service) FigureSave(req FigureSaveRequest, resp *FigureSaveResponse) error {
	ctx, cancel := s.call()
	defer cancel()
	fig, err := s.daemon.SaveFigure(ctx, req.Figure.toSettings())
	if err != nil {
		return err
	}
	resp.Figure = fromFigure(fig)
	return nil
}

func (s *service) FigureDelete(req FigureDeleteRequest, resp *FigureDeleteResponse) error {
	ctx, cancel := s.call()
	defer cancel()
	if err := s.daemon.DeleteFigure(ctx, req.Tag); err != nil {
		return err
	}
	resp.Removed = true
	return nil
}

func (s *service) SetLogLevel(req LogLevelRequest, resp *LogLevelResponse) error {
	level, err := s.daemon.SetLogLevel(req.Level)
	if err != nil {
		return err
	}
	resp.Level = strings.ToLower(level.String())
	return nil
}
