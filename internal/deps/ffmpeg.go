package deps

import "strings"

// ResolveBinary returns the configured command, or fallback when none is set.
func ResolveBinary(configured, fallback string) string {
	if trimmed := strings.TrimSpace(configured); trimmed != "" {
		return trimmed
	}
	return fallback
}

// EngineRequirements lists the binaries the ffmpeg engine executes.
func EngineRequirements(ffmpegBinary, ffprobeBinary string) []Requirement {
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     ResolveBinary(ffmpegBinary, "ffmpeg"),
			Description: "Required for branding and splicing",
		},
		{
			Name:        "FFprobe",
			Command:     ResolveBinary(ffprobeBinary, "ffprobe"),
			Description: "Required to size intro and outro segments",
		},
	}
}
