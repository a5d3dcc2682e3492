package ipc

import (
	"time"

	"figurespeaker/internal/daemon"
	"figurespeaker/internal/engine"
	"figurespeaker/internal/playback"
	"figurespeaker/internal/settings"
	"figurespeaker/internal/volume"
)

func fromEngineStatus(s engine.Status) EngineStatus {
	out := EngineStatus{State: string(s.State), PID: s.PID, Binary: s.Binary}
	if !s.StartedAt.IsZero() {
		out.StartedAt = s.StartedAt.UTC().Format(time.RFC3339)
	}
	return out
}

func fromRequest(req *playback.Request) *NowPlaying {
	if req == nil {
		return nil
	}
	return &NowPlaying{
		Tag:        req.Tag,
		URI:        req.URI,
		Name:       req.Name,
		PositionMS: req.Position.Milliseconds(),
	}
}

func fromPlaybackStatus(s playback.Status) PlaybackStatus {
	return PlaybackStatus{
		Available:  s.Available,
		State:      string(s.State),
		PositionMS: s.Position.Milliseconds(),
		NowPlaying: fromRequest(s.NowPlaying),
	}
}

func fromVolumeSettings(v settings.VolumeSettings) VolumeSettings {
	return VolumeSettings{Min: v.Min, Max: v.Max, Current: v.Current}
}

func (v VolumeSettings) toSettings() settings.VolumeSettings {
	return settings.VolumeSettings{Min: v.Min, Max: v.Max, Current: v.Current}
}

func fromVolumeResult(r volume.Result) VolumeResponse {
	return VolumeResponse{Previous: r.Previous, Current: r.Current, Changed: r.Changed, Reason: r.Reason}
}

func fromFigure(fig *settings.Figure) Figure {
	if fig == nil {
		return Figure{}
	}
	out := Figure{
		Tag:        fig.Tag,
		URI:        fig.URI,
		Name:       fig.Name,
		PlayMode:   fig.PlayMode,
		ProgressMS: fig.Progress.Milliseconds(),
	}
	if fig.LastPlayedAt != nil {
		out.LastPlayedAt = fig.LastPlayedAt.UTC().Format(time.RFC3339)
	}
	if !fig.UpdatedAt.IsZero() {
		out.UpdatedAt = fig.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return out
}

func (f Figure) toSettings() settings.Figure {
	return settings.Figure{Tag: f.Tag, URI: f.URI, Name: f.Name, PlayMode: f.PlayMode}
}

func fromDaemonStatus(s daemon.Status) StatusResponse {
	return StatusResponse{
		Running:      s.Running,
		PID:          s.PID,
		Engine:       fromEngineStatus(s.Engine),
		Session:      s.Session,
		Playback:     fromPlaybackStatus(s.Playback),
		Volume:       fromVolumeSettings(s.Volume),
		RFIDEnabled:  s.RFIDEnabled,
		MPRISActive:  s.MPRISActive,
		DatabasePath: s.DatabasePath,
		LockPath:     s.LockFilePath,
		LogPath:      s.LogPath,
	}
}
