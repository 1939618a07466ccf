package ffmpeg

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrEncoderUnsupported indicates the selected encoder cannot run on this
// host (missing hardware, driver, or a hit parallel-session limit).
var ErrEncoderUnsupported = errors.New("video encoder not supported on this host")

// exitCodeAccessViolation is the Windows status for an access violation,
// commonly raised when an NVENC session limit is exceeded.
const exitCodeAccessViolation = 3221225477

// rewriteEncoderError turns known hardware-encoder failures into a hint the
// operator can act on. Other failures are wrapped with the last stderr line
// for context.
func rewriteEncoderError(err error, stderrLines []string) error {
	if err == nil {
		return nil
	}

	for _, line := range stderrLines {
		if strings.Contains(line, "Error while opening encoder for output stream") {
			return fmt.Errorf("%w: the configured encoder failed to open; "+
				"check that the required GPU and driver are present and that "+
				"hardware session limits (e.g. NVENC parallel encodes) are not exceeded: %s",
				ErrEncoderUnsupported, line)
		}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == exitCodeAccessViolation {
		return fmt.Errorf("%w: ffmpeg crashed with an access violation, which "+
			"usually means the codec is unsupported by the selected hardware encoder",
			ErrEncoderUnsupported)
	}

	if n := len(stderrLines); n > 0 {
		return fmt.Errorf("%w: %s", err, stderrLines[n-1])
	}
	return err
}
