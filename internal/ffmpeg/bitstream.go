package ffmpeg

import "fmt"

// CodecFamily is the base codec family independent of the encoder
// implementation.
type CodecFamily string

const (
	CodecFamilyH264    CodecFamily = "h264"
	CodecFamilyHEVC    CodecFamily = "hevc"
	CodecFamilyVP8     CodecFamily = "vp8"
	CodecFamilyVP9     CodecFamily = "vp9"
	CodecFamilyUnknown CodecFamily = ""
)

// encoderToCodecFamily maps encoder names to their codec families.
var encoderToCodecFamily = map[string]CodecFamily{
	// H.264 encoders
	"libx264":           CodecFamilyH264,
	"h264_qsv":          CodecFamilyH264,
	"h264_amf":          CodecFamilyH264,
	"h264_nvenc":        CodecFamilyH264,
	"h264_omx":          CodecFamilyH264,
	"h264_v4l2m2m":      CodecFamilyH264,
	"h264_vaapi":        CodecFamilyH264,
	"h264_videotoolbox": CodecFamilyH264,

	// H.265 encoders
	"libx265":           CodecFamilyHEVC,
	"hevc_qsv":          CodecFamilyHEVC,
	"h265_amf":          CodecFamilyHEVC,
	"hevc_nvenc":        CodecFamilyHEVC,
	"hevc_vaapi":        CodecFamilyHEVC,
	"hevc_videotoolbox": CodecFamilyHEVC,

	// VP8 encoders
	"libvpx":    CodecFamilyVP8,
	"vp8_qsv":   CodecFamilyVP8,
	"vp8_vaapi": CodecFamilyVP8,

	// VP9 encoders
	"libvpx-vp9": CodecFamilyVP9,
	"vp9_qsv":    CodecFamilyVP9,
	"vp9_vaapi":  CodecFamilyVP9,
}

// FamilyForEncoder returns the codec family of a video encoder name.
func FamilyForEncoder(encoder string) CodecFamily {
	return encoderToCodecFamily[encoder]
}

// ChunkBitstreamFilter returns the bitstream filter that makes a chunk's
// elementary stream concatenable inside MPEG-TS. Only H.264, H.265 and VP9
// chunks can participate in multi-scene synthesis.
func ChunkBitstreamFilter(encoder string) (string, error) {
	switch FamilyForEncoder(encoder) {
	case CodecFamilyH264:
		return "h264_mp4toannexb", nil
	case CodecFamilyHEVC:
		return "hevc_mp4toannexb", nil
	case CodecFamilyVP9:
		return "vp9_superframe", nil
	default:
		return "", fmt.Errorf("encoder %q cannot produce concatenable chunks (need H264, H265 or VP9)", encoder)
	}
}
