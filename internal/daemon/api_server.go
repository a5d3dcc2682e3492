package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"figurespeaker/internal/config"
	"figurespeaker/internal/logging"
	"figurespeaker/internal/playback"
	"figurespeaker/internal/services"
	"figurespeaker/internal/settings"
	"figurespeaker/internal/volume"
)

const maxRequestBody = 64 << 10

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	if cfg == nil || d == nil {
		return nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(cfg.Paths.APIToken),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Engine start waits for the readiness marker.
		WriteTimeout: cfg.Engine.ReadyTimeoutDuration() + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes(token string) http.Handler {
	r := mux.NewRouter()
	r.Use(authMiddleware(token))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/engine/{action:start|stop|restart}", s.handleEngine).Methods(http.MethodPost)
	api.HandleFunc("/play", s.handlePlay).Methods(http.MethodPost)
	api.HandleFunc("/playback/{action:stop|pause|forwards|rewind}", s.handlePlayback).Methods(http.MethodPost)
	api.HandleFunc("/volume/{direction:increase|decrease}", s.handleVolume).Methods(http.MethodPost)
	api.HandleFunc("/settings/volume", s.handleGetVolumeSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings/volume", s.handlePutVolumeSettings).Methods(http.MethodPut)
	api.HandleFunc("/figures", s.handleListFigures).Methods(http.MethodGet)
	api.HandleFunc("/figures/{tag}", s.handlePutFigure).Methods(http.MethodPut)
	api.HandleFunc("/figures/{tag}", s.handleDeleteFigure).Methods(http.MethodDelete)
	api.HandleFunc("/loglevel", s.handleLogLevel).Methods(http.MethodPost)
	return r
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_serve_failed", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.Event("api_listen"),
	)
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
	s.mu.Unlock()
}

func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func requestContext(r *http.Request) context.Context {
	return Trigger(r.Context(), "api")
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, toStatusResponse(s.daemon.Status(r.Context())))
}

func (s *apiServer) handleEngine(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	var err error
	switch mux.Vars(r)["action"] {
	case "start":
		err = s.daemon.StartEngine(ctx)
	case "stop":
		err = s.daemon.StopEngine(ctx)
	case "restart":
		err = s.daemon.RestartEngine(ctx)
	}
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	status := s.daemon.Engine().Status()
	s.writeJSON(w, http.StatusOK, engineView{State: string(status.State), PID: status.PID, Binary: status.Binary})
}

func (s *apiServer) handlePlay(w http.ResponseWriter, r *http.Request) {
	var body playRequest
	if !s.decode(w, r, &body) {
		return
	}
	ctx := requestContext(r)
	var (
		req *playback.Request
		err error
	)
	switch {
	case strings.TrimSpace(body.Tag) != "":
		req, err = s.daemon.PlayTag(ctx, body.Tag)
	case strings.TrimSpace(body.URI) != "":
		req, err = s.daemon.PlayURI(ctx, body.URI, time.Duration(body.PositionMS)*time.Millisecond)
	default:
		err = validationError("play", "tag or uri is required")
	}
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, playResponse{Played: req != nil, Request: toRequestView(req)})
}

func (s *apiServer) handlePlayback(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	var err error
	switch mux.Vars(r)["action"] {
	case "stop":
		err = s.daemon.StopPlayback(ctx)
	case "pause":
		err = s.daemon.TogglePause(ctx)
	case "forwards":
		err = s.daemon.Wind(ctx, playback.WindForwards)
	case "rewind":
		err = s.daemon.Wind(ctx, playback.WindRewind)
	}
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	status, err := s.daemon.PlaybackStatus(ctx)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toPlaybackView(status))
}

func (s *apiServer) handleVolume(w http.ResponseWriter, r *http.Request) {
	direction, err := volume.ParseDirection(mux.Vars(r)["direction"])
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	result, err := s.daemon.ChangeVolume(requestContext(r), direction)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleGetVolumeSettings(w http.ResponseWriter, r *http.Request) {
	v, err := s.daemon.VolumeSettings(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toVolumeView(v))
}

func (s *apiServer) handlePutVolumeSettings(w http.ResponseWriter, r *http.Request) {
	var body volumeView
	if !s.decode(w, r, &body) {
		return
	}
	v, err := s.daemon.UpdateVolumeSettings(requestContext(r), settings.VolumeSettings{
		Min:     body.Min,
		Max:     body.Max,
		Current: body.Current,
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toVolumeView(v))
}

func (s *apiServer) handleListFigures(w http.ResponseWriter, r *http.Request) {
	figs, err := s.daemon.ListFigures(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	views := make([]figureView, 0, len(figs))
	for _, fig := range figs {
		views = append(views, toFigureView(fig))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"figures": views})
}

func (s *apiServer) handlePutFigure(w http.ResponseWriter, r *http.Request) {
	var body figureRequest
	if !s.decode(w, r, &body) {
		return
	}
	fig, err := s.daemon.SaveFigure(requestContext(r), settings.Figure{
		Tag:      mux.Vars(r)["tag"],
		URI:      body.URI,
		Name:     body.Name,
		PlayMode: body.PlayMode,
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toFigureView(fig))
}

func (s *apiServer) handleDeleteFigure(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.DeleteFigure(requestContext(r), mux.Vars(r)["tag"]); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleLogLevel(w http.ResponseWriter, r *http.Request) {
	level, err := s.daemon.SetLogLevel(strings.TrimSpace(r.URL.Query().Get("level")))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"level": strings.ToLower(level.String())})
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) writeFailure(w http.ResponseWriter, err error) {
	status := services.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Debug("api request failed", logging.Error(err), logging.Int("status", status))
	}
	s.writeError(w, status, err.Error())
}
