package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// Audio profile every spliced segment is resampled to.
const (
	spliceSampleRate    = 48000
	spliceChannelLayout = "stereo"
)

// overlayGraph builds the filter_complex for ApplyOverlays. Input 0 is the
// clip; input i+1 is overlays[i]. The final video label is [v].
func overlayGraph(overlays []Overlay) string {
	if len(overlays) == 0 {
		return "[0:v]null[v]"
	}
	parts := make([]string, 0, len(overlays)*2)
	for i, o := range overlays {
		parts = append(parts, fmt.Sprintf("[%d:v]scale=%d:-1[l%d]", i+1, o.Placement.Width, i+1))
	}
	prev := "0:v"
	for i, o := range overlays {
		out := "v" + strconv.Itoa(i+1)
		if i == len(overlays)-1 {
			out = "v"
		}
		parts = append(parts, fmt.Sprintf("[%s][l%d]overlay=%s:%s[%s]", prev, i+1, o.Placement.X, o.Placement.Y, out))
		prev = out
	}
	return strings.Join(parts, ";")
}

// segmentInfo is what the concat graph needs to know about one input.
type segmentInfo struct {
	hasAudio bool
	duration float64
}

// concatGraph builds the filter_complex for Concatenate. Segments missing
// audio get a silent track trimmed to their own duration. Final labels are
// [v] and [a].
func concatGraph(width, height int, segments []segmentInfo) string {
	parts := make([]string, 0, len(segments)*2+1)
	var joined strings.Builder
	for i, seg := range segments {
		parts = append(parts, fmt.Sprintf(
			"[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,setpts=PTS-STARTPTS[v%d]",
			i, width, height, width, height, i))
		format := fmt.Sprintf("aformat=sample_rates=%d:channel_layouts=%s", spliceSampleRate, spliceChannelLayout)
		if seg.hasAudio {
			parts = append(parts, fmt.Sprintf("[%d:a]aresample=async=1:first_pts=0,%s,asetpts=PTS-STARTPTS[a%d]", i, format, i))
		} else {
			parts = append(parts, fmt.Sprintf(
				"anullsrc=r=%d:cl=%s,atrim=duration=%s,%s,asetpts=PTS-STARTPTS[a%d]",
				spliceSampleRate, spliceChannelLayout, formatSeconds(seg.duration), format, i))
		}
		fmt.Fprintf(&joined, "[v%d][a%d]", i, i)
	}
	joined.WriteString(fmt.Sprintf("concat=n=%d:v=1:a=1[v][a]", len(segments)))
	parts = append(parts, joined.String())
	return strings.Join(parts, ";")
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}
