package encoder

// Format is the output container format.
type Format string

const (
	FormatMP4  Format = "mp4"
	FormatWebM Format = "webm"
	// FormatMPEGTS is the intermediate chunk container used by the
	// synthesizer; not selectable as a final output.
	FormatMPEGTS Format = "mpegts"
)

// Video encoder names, grouped by implementation.
const (
	// CPU
	VideoEncoderLibX264   = "libx264"
	VideoEncoderLibX265   = "libx265"
	VideoEncoderLibVPX    = "libvpx"
	VideoEncoderLibVPXVP9 = "libvpx-vp9"
	// Intel QSV
	VideoEncoderH264QSV = "h264_qsv"
	VideoEncoderHEVCQSV = "hevc_qsv"
	VideoEncoderVP8QSV  = "vp8_qsv"
	VideoEncoderVP9QSV  = "vp9_qsv"
	// AMD AMF
	VideoEncoderH264AMF = "h264_amf"
	VideoEncoderH265AMF = "h265_amf"
	// NVIDIA NVENC
	VideoEncoderH264NVENC = "h264_nvenc"
	VideoEncoderHEVCNVENC = "hevc_nvenc"
	// OpenMAX
	VideoEncoderH264OMX = "h264_omx"
	// V4L2
	VideoEncoderH264V4L2M2M = "h264_v4l2m2m"
	// VAAPI
	VideoEncoderH264VAAPI = "h264_vaapi"
	VideoEncoderHEVCVAAPI = "hevc_vaapi"
	VideoEncoderVP8VAAPI  = "vp8_vaapi"
	VideoEncoderVP9VAAPI  = "vp9_vaapi"
	// VideoToolbox
	VideoEncoderH264VideoToolbox = "h264_videotoolbox"
	VideoEncoderHEVCVideoToolbox = "hevc_videotoolbox"
)

// Audio encoder names.
const (
	AudioEncoderAAC     = "aac"
	AudioEncoderLibOpus = "libopus"
)

// mp4Encoders are the video encoders valid for MP4 output.
var mp4Encoders = map[string]bool{
	VideoEncoderLibX264:          true,
	VideoEncoderLibX265:          true,
	VideoEncoderH264QSV:          true,
	VideoEncoderHEVCQSV:          true,
	VideoEncoderH264AMF:          true,
	VideoEncoderH265AMF:          true,
	VideoEncoderH264NVENC:        true,
	VideoEncoderHEVCNVENC:        true,
	VideoEncoderH264OMX:          true,
	VideoEncoderH264V4L2M2M:      true,
	VideoEncoderH264VAAPI:        true,
	VideoEncoderHEVCVAAPI:        true,
	VideoEncoderH264VideoToolbox: true,
	VideoEncoderHEVCVideoToolbox: true,
}

// webmEncoders are the video encoders valid for WebM output.
var webmEncoders = map[string]bool{
	VideoEncoderLibVPX:    true,
	VideoEncoderLibVPXVP9: true,
	VideoEncoderVP8QSV:    true,
	VideoEncoderVP9QSV:    true,
	VideoEncoderVP8VAAPI:  true,
	VideoEncoderVP9VAAPI:  true,
}

// h264ClassEncoders need the main profile / medium preset defaults.
var h264ClassEncoders = map[string]bool{
	VideoEncoderLibX264: true,
	VideoEncoderLibX265: true,
}

// DefaultVideoEncoder returns the CPU encoder for a format.
func DefaultVideoEncoder(format Format) string {
	if format == FormatWebM {
		return VideoEncoderLibVPXVP9
	}
	return VideoEncoderLibX264
}

// DefaultAudioEncoder returns the audio encoder for a format.
func DefaultAudioEncoder(format Format) string {
	if format == FormatWebM {
		return AudioEncoderLibOpus
	}
	return AudioEncoderAAC
}

// EncoderValidForFormat reports whether a video encoder can feed a container.
func EncoderValidForFormat(encoder string, format Format) bool {
	switch format {
	case FormatMP4:
		return mp4Encoders[encoder]
	case FormatWebM:
		return webmEncoders[encoder]
	case FormatMPEGTS:
		return mp4Encoders[encoder] || webmEncoders[encoder]
	default:
		return false
	}
}
