package daemon

import (
	"time"

	"figurespeaker/internal/playback"
	"figurespeaker/internal/settings"
)

type statusResponse struct {
	Running      bool         `json:"running"`
	PID          int          `json:"pid"`
	Engine       engineView   `json:"engine"`
	Session      bool         `json:"session"`
	Playback     playbackView `json:"playback"`
	Volume       volumeView   `json:"volume"`
	RFIDEnabled  bool         `json:"rfid_enabled"`
	MPRISActive  bool         `json:"mpris_active"`
	DatabasePath string       `json:"database_path"`
	LockFilePath string       `json:"lock_path"`
	LogPath      string       `json:"log_path,omitempty"`
}

type engineView struct {
	State     string `json:"state"`
	PID       int    `json:"pid,omitempty"`
	Binary    string `json:"binary"`
	StartedAt string `json:"started_at,omitempty"`
}

type playbackView struct {
	Available  bool         `json:"available"`
	State      string       `json:"state,omitempty"`
	PositionMS int64        `json:"position_ms"`
	NowPlaying *requestView `json:"now_playing,omitempty"`
}

type requestView struct {
	Tag        string `json:"tag,omitempty"`
	URI        string `json:"uri"`
	Name       string `json:"name,omitempty"`
	PositionMS int64  `json:"position_ms"`
}

type volumeView struct {
	Min     int `json:"min"`
	Max     int `json:"max"`
	Current int `json:"current"`
}

type figureView struct {
	Tag          string `json:"tag"`
	URI          string `json:"uri"`
	Name         string `json:"name,omitempty"`
	PlayMode     string `json:"play_mode"`
	ProgressMS   int64  `json:"progress_ms"`
	LastPlayedAt string `json:"last_played_at,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

type playRequest struct {
	Tag        string `json:"tag"`
	URI        string `json:"uri"`
	PositionMS int64  `json:"position_ms"`
}

type playResponse struct {
	Played  bool         `json:"played"`
	Request *requestView `json:"request,omitempty"`
}

type figureRequest struct {
	URI      string `json:"uri"`
	Name     string `json:"name"`
	PlayMode string `json:"play_mode"`
}

func toStatusResponse(s Status) statusResponse {
	engine := engineView{
		State:  string(s.Engine.State),
		PID:    s.Engine.PID,
		Binary: s.Engine.Binary,
	}
	if !s.Engine.StartedAt.IsZero() {
		engine.StartedAt = s.Engine.StartedAt.UTC().Format(time.RFC3339)
	}
	return statusResponse{
		Running:      s.Running,
		PID:          s.PID,
		Engine:       engine,
		Session:      s.Session,
		Playback:     toPlaybackView(s.Playback),
		Volume:       toVolumeView(s.Volume),
		RFIDEnabled:  s.RFIDEnabled,
		MPRISActive:  s.MPRISActive,
		DatabasePath: s.DatabasePath,
		LockFilePath: s.LockFilePath,
		LogPath:      s.LogPath,
	}
}

func toPlaybackView(s playback.Status) playbackView {
	return playbackView{
		Available:  s.Available,
		State:      string(s.State),
		PositionMS: s.Position.Milliseconds(),
		NowPlaying: toRequestView(s.NowPlaying),
	}
}

func toRequestView(req *playback.Request) *requestView {
	if req == nil {
		return nil
	}
	return &requestView{
		Tag:        req.Tag,
		URI:        req.URI,
		Name:       req.Name,
		PositionMS: req.Position.Milliseconds(),
	}
}

func toVolumeView(v settings.VolumeSettings) volumeView {
	return volumeView{Min: v.Min, Max: v.Max, Current: v.Current}
}

func toFigureView(fig *settings.Figure) figureView {
	view := figureView{
		Tag:        fig.Tag,
		URI:        fig.URI,
		Name:       fig.Name,
		PlayMode:   fig.PlayMode,
		ProgressMS: fig.Progress.Milliseconds(),
	}
	if fig.LastPlayedAt != nil {
		view.LastPlayedAt = fig.LastPlayedAt.UTC().Format(time.RFC3339)
	}
	if !fig.UpdatedAt.IsZero() {
		view.UpdatedAt = fig.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return view
}
