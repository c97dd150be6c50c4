package spec

import "time"

const (
	// === IDENTITY & VERSIONING ===
	VersionMajor = 1
	VersionMinor = 0
	ServerName   = "HDX-StemServer"

	// === ENGINE SPECS ===
	// SampleRate is only used when no track has been decoded yet; once
	// stems are loaded the rate of the first decoded stem wins.
	SampleRate   = 48000
	Channels     = 2
	BufferFrames = 1024
	MaxGain      = 1.0
	MinGain      = 0.0

	// DecodeWorkers is the default number of stems decoded in parallel.
	DecodeWorkers = 4

	// === IPC ===
	SocketFile = "/tmp/hdx-stemd.sock"
	SocketEnv  = "HDX_STEM_SOCKET"

	// SeekStep is the jump used by the keyboard players.
	SeekStep = 5 * time.Second
	// GainStep is the volume nudge used by the keyboard players.
	GainStep = 0.05

	// === LOGGING ===
	LogSubsysEngine  = "ENGN"
	LogSubsysSession = "SESS"
	LogSubsysTracks  = "TRKS"
	LogSubsysIPC     = "IPC "
	LogSubsysDevice  = "DEVC"
)

// SupportedExt lists the stem file extensions the decoder dispatches on.
var SupportedExt = []string{".wav", ".mp3", ".flac", ".ogg", ".opus"}
