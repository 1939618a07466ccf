package ffmpeg

import (
	"strconv"
	"strings"
)

// input is one -i source with its preceding per-input arguments.
type input struct {
	args   []string
	source string
}

// CommandBuilder assembles FFmpeg argument lists with a fluent API.
// Unlike a single-input transcode, renders routinely feed several inputs
// (intermediate video plus every audio track) into one filter graph, so the
// builder keeps an ordered input list.
type CommandBuilder struct {
	binary        string
	logLevel      string
	globalArgs    []string
	inputs        []input
	pendingInput  []string
	filterComplex string
	videoFilters  []string
	outputArgs    []string
	output        string
	overwrite     bool
}

// NewCommandBuilder creates a builder for the given ffmpeg binary.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:   ffmpegPath,
		logLevel: "error",
	}
}

// LogLevel sets the FFmpeg log level.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	if level != "" {
		b.logLevel = level
	}
	return b
}

// HideBanner hides the FFmpeg banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// Overwrite enables output file overwriting.
func (b *CommandBuilder) Overwrite() *CommandBuilder {
	b.overwrite = true
	return b
}

// GlobalArgs adds arbitrary global arguments.
func (b *CommandBuilder) GlobalArgs(args ...string) *CommandBuilder {
	b.globalArgs = append(b.globalArgs, args...)
	return b
}

// InputArgs stages per-input arguments applied to the next Input call.
func (b *CommandBuilder) InputArgs(args ...string) *CommandBuilder {
	b.pendingInput = append(b.pendingInput, args...)
	return b
}

// Input adds an input source, consuming any staged per-input arguments.
func (b *CommandBuilder) Input(source string) *CommandBuilder {
	b.inputs = append(b.inputs, input{args: b.pendingInput, source: source})
	b.pendingInput = nil
	return b
}

// ImagePipeInput adds a stdin image2pipe input at the given frame rate.
func (b *CommandBuilder) ImagePipeInput(fps float64) *CommandBuilder {
	return b.
		InputArgs("-f", "image2pipe", "-r", formatFloat(fps)).
		Input("pipe:0")
}

// FilterComplex sets the complex filter graph.
func (b *CommandBuilder) FilterComplex(graph string) *CommandBuilder {
	b.filterComplex = graph
	return b
}

// VideoFilter appends a simple -vf filter.
func (b *CommandBuilder) VideoFilter(filter string) *CommandBuilder {
	b.videoFilters = append(b.videoFilters, filter)
	return b
}

// VideoCodec sets the video codec.
func (b *CommandBuilder) VideoCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:v", codec)
	return b
}

// AudioCodec sets the audio codec.
func (b *CommandBuilder) AudioCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:a", codec)
	return b
}

// VideoBitrate sets the video bitrate.
func (b *CommandBuilder) VideoBitrate(bitrate string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-b:v", bitrate)
	return b
}

// AudioBitrate sets the audio bitrate.
func (b *CommandBuilder) AudioBitrate(bitrate string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-b:a", bitrate)
	return b
}

// PixelFormat sets the output pixel format.
func (b *CommandBuilder) PixelFormat(format string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-pix_fmt", format)
	return b
}

// OutputArgs adds arbitrary output arguments.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// Faststart relocates the moov atom for progressive playback.
func (b *CommandBuilder) Faststart() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-movflags", "+faststart")
	return b
}

// Format sets the output container format.
func (b *CommandBuilder) Format(format string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-f", format)
	return b
}

// BitstreamFilter applies a video bitstream filter.
func (b *CommandBuilder) BitstreamFilter(filter string) *CommandBuilder {
	if filter != "" {
		b.outputArgs = append(b.outputArgs, "-bsf:v", filter)
	}
	return b
}

// Output sets the output destination.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Args assembles the final argument list.
func (b *CommandBuilder) Args() []string {
	var args []string

	args = append(args, "-loglevel", b.logLevel)
	args = append(args, b.globalArgs...)
	if b.overwrite {
		args = append(args, "-y")
	}

	for _, in := range b.inputs {
		args = append(args, in.args...)
		args = append(args, "-i", in.source)
	}

	if b.filterComplex != "" {
		args = append(args, "-filter_complex", b.filterComplex)
	}
	if len(b.videoFilters) > 0 {
		args = append(args, "-vf", strings.Join(b.videoFilters, ","))
	}

	args = append(args, b.outputArgs...)
	args = append(args, b.output)
	return args
}

// Build builds the command.
func (b *CommandBuilder) Build() *Command {
	return NewCommand(b.binary, b.Args())
}

// formatFloat renders a frame rate without a trailing zero fraction.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
