// Package dispatch implements C9, the encoder dispatch fabric: a
// bidirectional, newline-delimited JSON protocol over gorilla/websocket
// connections, capacity-aware assignment, throttled progress, stall
// detection and path translation (§4.5, §6).
package dispatch

// Profile describes one encode profile sent to the worker as part of
// job:assign (§6).
type Profile struct {
	ID                 string   `json:"id" yaml:"id"`
	Name               string   `json:"name" yaml:"name"`
	VideoEncoder       string   `json:"videoEncoder" yaml:"videoEncoder"`
	VideoQuality       string   `json:"videoQuality,omitempty" yaml:"videoQuality,omitempty"`
	VideoMaxResolution string   `json:"videoMaxResolution,omitempty" yaml:"videoMaxResolution,omitempty"`
	VideoMaxBitrate    int      `json:"videoMaxBitrate,omitempty" yaml:"videoMaxBitrate,omitempty"`
	HWAccel            bool     `json:"hwAccel,omitempty" yaml:"hwAccel,omitempty"`
	HWDevice           string   `json:"hwDevice,omitempty" yaml:"hwDevice,omitempty"`
	VideoFlags         []string `json:"videoFlags,omitempty" yaml:"videoFlags,omitempty"`
	AudioEncoder       string   `json:"audioEncoder,omitempty" yaml:"audioEncoder,omitempty"`
	AudioFlags         []string `json:"audioFlags,omitempty" yaml:"audioFlags,omitempty"`
	SubtitlesMode      string   `json:"subtitlesMode,omitempty" yaml:"subtitlesMode,omitempty"`
	Container          string   `json:"container,omitempty" yaml:"container,omitempty"`
}

// Message is the envelope every worker->server frame is first decoded into;
// Type selects which concrete struct below the transport layer (server.go)
// then decodes the same raw frame into.
type Message struct {
	Type string `json:"type"`
}

// Worker -> server messages.

type RegisterMsg struct {
	Type          string `json:"type"`
	EncoderID     string `json:"encoderId"`
	GPUDevice     string `json:"gpuDevice"`
	MaxConcurrent int    `json:"maxConcurrent"`
	CurrentJobs   int    `json:"currentJobs"`
	Hostname      string `json:"hostname"`
	Version       string `json:"version"`
}

type HeartbeatMsg struct {
	Type        string `json:"type"`
	EncoderID   string `json:"encoderId"`
	CurrentJobs int    `json:"currentJobs"`
	State       string `json:"state"`
}

type JobAcceptedMsg struct {
	Type      string `json:"type"`
	JobID     string `json:"jobId"`
	EncoderID string `json:"encoderId"`
}

type JobProgressMsg struct {
	Type        string   `json:"type"`
	JobID       string   `json:"jobId"`
	Progress    float64  `json:"progress"`
	FPS         *float64 `json:"fps,omitempty"`
	Speed       *float64 `json:"speed,omitempty"`
	ETA         int      `json:"eta,omitempty"`
	Frame       int      `json:"frame,omitempty"`
	Bitrate     string   `json:"bitrate,omitempty"`
	TotalSize   int64    `json:"totalSize,omitempty"`
	ElapsedTime float64  `json:"elapsedTime,omitempty"`
}

type JobCompleteMsg struct {
	Type             string  `json:"type"`
	JobID            string  `json:"jobId"`
	OutputSize       int64   `json:"outputSize"`
	CompressionRatio float64 `json:"compressionRatio"`
	Duration         float64 `json:"duration"`
}

type JobFailedMsg struct {
	Type      string `json:"type"`
	JobID     string `json:"jobId"`
	Error     string `json:"error"`
	Retriable bool   `json:"retriable"`
}

// Server -> worker messages.

type RegisteredMsg struct {
	Type string `json:"type"`
}

type PongMsg struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type JobAssignMsg struct {
	Type       string  `json:"type"`
	JobID      string  `json:"jobId"`
	InputPath  string  `json:"inputPath"`
	OutputPath string  `json:"outputPath"`
	ProfileID  string  `json:"profileId"`
	Profile    Profile `json:"profile"`
}

type JobCancelMsg struct {
	Type   string `json:"type"`
	JobID  string `json:"jobId"`
	Reason string `json:"reason"`
}

type ServerShutdownMsg struct {
	Type            string `json:"type"`
	ReconnectDelay  int    `json:"reconnectDelay"`
}
