package synthesis

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmylchreest/pagecast/internal/encoder"
	"github.com/jmylchreest/pagecast/internal/ffmpeg"
)

// SpliceOptions configures the chunk splice pass that turns the encoded
// MPEG-TS intermediates into a single video-only file.
type SpliceOptions struct {
	OutputPath string
	Format     encoder.Format
	// VideoEncoder re-encodes transition boundaries; defaults to the
	// format's CPU encoder.
	VideoEncoder string
	Bitrate      string
	Quality      int
	// AttachCoverPath overlays an image on the spliced output, shown only
	// while the cover input has frames (repeatlast=0).
	AttachCoverPath string
	// PixelFormat of the re-encoded output; defaults to yuv420p. Alpha
	// WebM splices set yuva420p.
	PixelFormat string
	LogLevel    string
}

// inputGroups merges runs of chunks with no transition between them.
// Adjacent transition-less chunks share one concat protocol input; a
// transition splits the run so the boundary can go through xfade.
func inputGroups(chunks []*VideoChunk) [][]*VideoChunk {
	var groups [][]*VideoChunk
	var current []*VideoChunk
	for _, c := range chunks {
		current = append(current, c)
		if c.Transition != nil {
			groups = append(groups, current)
			current = nil
		}
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

// groupInput renders one group as an FFmpeg input path.
func groupInput(group []*VideoChunk) string {
	if len(group) == 1 {
		return group[0].OutputPath
	}
	paths := make([]string, len(group))
	for i, c := range group {
		paths[i] = c.OutputPath
	}
	return "concat:" + strings.Join(paths, "|")
}

// BuildSpliceArgs assembles the FFmpeg argument list for the splice pass.
func BuildSpliceArgs(chunks []*VideoChunk, o *SpliceOptions, ffmpegPath string) ([]string, error) {
	if len(chunks) == 0 {
		return nil, errors.New("no chunks to splice")
	}
	if o.OutputPath == "" {
		return nil, errors.New("splice output path is required")
	}
	for _, c := range chunks {
		if c.OutputPath == "" {
			return nil, errors.New("chunk missing intermediate path")
		}
	}

	groups := inputGroups(chunks)
	hasTransitions := len(groups) > 1
	hasCover := o.AttachCoverPath != ""

	b := ffmpeg.NewCommandBuilder(ffmpegPath).
		LogLevel(o.LogLevel).
		HideBanner().
		Overwrite()

	for _, g := range groups {
		b.Input(groupInput(g))
	}
	if hasCover {
		b.Input(o.AttachCoverPath)
	}

	// No transitions and no cover is a pure remux.
	if !hasTransitions && !hasCover {
		b.VideoCodec("copy")
		finishContainer(b, o.Format)
		b.Output(o.OutputPath)
		return b.Args(), nil
	}

	var graph []string
	last := "[0]"

	if hasTransitions {
		// Each boundary's xfade offset is the composite time at which the
		// transition starts: the sum of effective durations so far.
		var offset int64
		for i := 0; i < len(groups)-1; i++ {
			group := groups[i]
			for _, c := range group {
				offset += c.EffectiveDuration()
			}
			t := group[len(group)-1].Transition
			out := fmt.Sprintf("[v%d]", i)
			graph = append(graph, fmt.Sprintf(
				"%s[%d]xfade=transition=%s:duration=%s:offset=%s%s",
				last, i+1, t.ID,
				secondsString(t.Duration), secondsString(offset), out))
			last = out
		}
	}

	if hasCover {
		coverIndex := len(groups)
		out := "[vout]"
		graph = append(graph, fmt.Sprintf(
			"%s[%d]overlay=0:0:repeatlast=0%s", last, coverIndex, out))
		last = out
	}

	b.FilterComplex(strings.Join(graph, ";"))
	b.OutputArgs("-map", last)

	enc := o.VideoEncoder
	if enc == "" {
		enc = encoder.DefaultVideoEncoder(o.Format)
	}
	b.VideoCodec(enc)
	if o.Bitrate != "" {
		b.VideoBitrate(o.Bitrate)
	} else {
		first := chunks[0]
		kbps := encoder.DefaultBitrateKbps(first.Width, first.Height, o.Quality)
		b.VideoBitrate(strconv.FormatInt(kbps, 10) + "k")
	}
	pixelFormat := o.PixelFormat
	if pixelFormat == "" {
		pixelFormat = "yuv420p"
	}
	b.PixelFormat(pixelFormat)
	finishContainer(b, o.Format)

	b.Output(o.OutputPath)
	return b.Args(), nil
}

func finishContainer(b *ffmpeg.CommandBuilder, format encoder.Format) {
	switch format {
	case encoder.FormatWebM:
		b.Format("webm")
	default:
		b.Faststart().Format("mp4")
	}
}

func secondsString(ms int64) string {
	return strconv.FormatFloat(float64(ms)/1000, 'f', -1, 64)
}
