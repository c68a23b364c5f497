package transcoder

import (
	"fmt"
	"strconv"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Encoder settings shared by every backend.
const (
	videoCodec    = "libx264"
	audioCodec    = "aac"
	defaultPreset = "ultrafast"
	movFlags      = "+faststart"
)

// globalArgs precede the graph so ffmpeg never prompts or prints a banner.
var globalArgs = []string{"-hide_banner", "-nostdin", "-y"}

// scaleFilter keeps both dimensions even, which libx264 requires for yuv420p.
func scaleFilter(factor float64) string {
	s := strconv.FormatFloat(factor, 'f', -1, 64)
	return fmt.Sprintf("scale=trunc(iw*%s/2)*2:trunc(ih*%s/2)*2", s, s)
}

// buildArgs returns the ffmpeg argument list (without the program name) that
// transforms input into output according to p.
func buildArgs(input, output string, p Params, threads int, preset string) []string {
	if preset == "" {
		preset = defaultPreset
	}

	kw := ffmpeg.KwArgs{
		"c:v":      videoCodec,
		"c:a":      audioCodec,
		"preset":   preset,
		"movflags": movFlags,
	}
	if threads > 0 {
		kw["threads"] = strconv.Itoa(threads)
	}

	switch p.Mode {
	case ModeScale:
		kw["vf"] = scaleFilter(p.Scale)
	default:
		kw["crf"] = strconv.Itoa(p.CRF)
	}

	graph := ffmpeg.Input(input).Output(output, kw).GetArgs()

	args := make([]string, 0, len(globalArgs)+len(graph))
	args = append(args, globalArgs...)
	return append(args, graph...)
}
