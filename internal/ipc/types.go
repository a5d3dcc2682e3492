package ipc

// StopRequest asks the daemon process to shut down.
type StopRequest struct{}

// StopResponse acknowledges a stop request.
type StopResponse struct {
	Stopping bool `json:"stopping"`
}

// StatusRequest requests daemon status.
type StatusRequest struct{}

// EngineStatus describes the supervised playback engine.
type EngineStatus struct {
	State     string `json:"state"`
	PID       int    `json:"pid,omitempty"`
	Binary    string `json:"binary"`
	StartedAt string `json:"started_at,omitempty"`
}

// NowPlaying identifies the item handed to the engine most recently.
type NowPlaying struct {
	Tag        string `json:"tag,omitempty"`
	URI        string `json:"uri"`
	Name       string `json:"name,omitempty"`
	PositionMS int64  `json:"position_ms"`
}

// PlaybackStatus describes the engine transport.
type PlaybackStatus struct {
	Available  bool        `json:"available"`
	State      string      `json:"state,omitempty"`
	PositionMS int64       `json:"position_ms"`
	NowPlaying *NowPlaying `json:"now_playing,omitempty"`
}

// VolumeSettings is the persisted volume tuple.
type VolumeSettings struct {
	Min     int `json:"min"`
	Max     int `json:"max"`
	Current int `json:"current"`
}

// StatusResponse reports daemon status.
type StatusResponse struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	Engine       EngineStatus   `json:"engine"`
	Session      bool           `json:"session"`
	Playback     PlaybackStatus `json:"playback"`
	Volume       VolumeSettings `json:"volume"`
	RFIDEnabled  bool           `json:"rfid_enabled"`
	MPRISActive  bool           `json:"mpris_active"`
	APIAddress   string         `json:"api_address,omitempty"`
	DatabasePath string         `json:"database_path"`
	LockPath     string         `json:"lock_path"`
	LogPath      string         `json:"log_path,omitempty"`
}

// EngineRequest starts, stops or restarts the engine.
type EngineRequest struct {
	Action string `json:"action"`
}

// EngineResponse reports the engine after the action.
type EngineResponse struct {
	Engine EngineStatus `json:"engine"`
}

// PlayRequest plays a figure by tag or an engine URI directly.
type PlayRequest struct {
	Tag        string `json:"tag,omitempty"`
	URI        string `json:"uri,omitempty"`
	PositionMS int64  `json:"position_ms,omitempty"`
}

// PlayResponse reports what was handed to the engine. Played is false for
// unknown tags.
type PlayResponse struct {
	Played  bool        `json:"played"`
	Request *NowPlaying `json:"request,omitempty"`
}

// PlaybackRequest drives the transport. Action is one of stop, toggle,
// pause, resume, forwards, rewind or seek.
type PlaybackRequest struct {
	Action     string `json:"action"`
	PositionMS int64  `json:"position_ms,omitempty"`
}

// PlaybackResponse reports the transport after the action.
type PlaybackResponse struct {
	Playback PlaybackStatus `json:"playback"`
}

// VolumeRequest applies a volume button press, or an absolute level when
// Level is set.
type VolumeRequest struct {
	Direction string `json:"direction,omitempty"`
	Level     *int   `json:"level,omitempty"`
}

// VolumeResponse reports the outcome of a volume change.
type VolumeResponse struct {
	Previous int    `json:"previous"`
	Current  int    `json:"current"`
	Changed  bool   `json:"changed"`
	Reason   string `json:"reason,omitempty"`
}

// VolumeSettingsRequest reads the volume tuple, replacing it first when
// Update is set.
type VolumeSettingsRequest struct {
	Update   bool           `json:"update,omitempty"`
	Settings VolumeSettings `json:"settings"`
}

// VolumeSettingsResponse carries the stored volume tuple.
type VolumeSettingsResponse struct {
	Settings VolumeSettings `json:"settings"`
}

// Figure is a configured tag.
type Figure struct {
	Tag          string `json:"tag"`
	URI          string `json:"uri"`
	Name         string `json:"name,omitempty"`
	PlayMode     string `json:"play_mode,omitempty"`
	ProgressMS   int64  `json:"progress_ms"`
	LastPlayedAt string `json:"last_played_at,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

// FigureListRequest lists configured figures.
type FigureListRequest struct{}

// FigureListResponse carries configured figures.
type FigureListResponse struct {
	Figures []Figure `json:"figures"`
}

// FigureSaveRequest creates or replaces a figure.
type FigureSaveRequest struct {
	Figure Figure `json:"figure"`
}

// FigureSaveResponse carries the stored figure.
type FigureSaveResponse struct {
	Figure Figure `json:"figure"`
}

// FigureDeleteRequest removes a figure.
type FigureDeleteRequest struct {
	Tag string `json:"tag"`
}

// FigureDeleteResponse acknowledges a removal.
type FigureDeleteResponse struct {
	Removed bool `json:"removed"`
}

// LogLevelRequest changes the daemon log level.
type LogLevelRequest struct {
	Level string `json:"level"`
}

// LogLevelResponse reports the active log level.
type LogLevelResponse struct {
	Level string `json:"level"`
}
