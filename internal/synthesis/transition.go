package synthesis

import (
	"errors"
	"fmt"
)

// Transition describes the Xfade blend applied between a chunk and its
// successor. The transition overlaps the start of the next chunk, so a
// chunk's contribution to the composite timeline is its duration minus the
// transition duration.
type Transition struct {
	ID       string `json:"id"`
	Duration int64  `json:"duration"` // milliseconds
}

// xfadeTransitions is the vocabulary accepted by FFmpeg's xfade filter.
var xfadeTransitions = map[string]bool{
	"fade":       true,
	"wipeleft":   true,
	"wiperight":  true,
	"wipeup":     true,
	"wipedown":   true,
	"slideleft":  true,
	"slideright": true,
	"slideup":    true,
	"slidedown":  true,
	"circlecrop": true,
	"rectcrop":   true,
	"distance":   true,
	"fadeblack":  true,
	"fadewhite":  true,
	"radial":     true,
	"smoothleft": true,
	"smoothright": true,
	"smoothup":   true,
	"smoothdown": true,
	"circleopen":  true,
	"circleclose": true,
	"vertopen":   true,
	"vertclose":  true,
	"horzopen":   true,
	"horzclose":  true,
	"dissolve":   true,
	"pixelize":   true,
	"diagtl":     true,
	"diagtr":     true,
	"diagbl":     true,
	"diagbr":     true,
	"hlslice":    true,
	"hrslice":    true,
	"vuslice":    true,
	"vdslice":    true,
	"hblur":      true,
	"fadegrays":  true,
	"wipetl":     true,
	"wipetr":     true,
	"wipebl":     true,
	"wipebr":     true,
	"squeezeh":   true,
	"squeezev":   true,
	"zoomin":     true,
	"hlwind":     true,
	"hrwind":     true,
	"vuwind":     true,
	"vdwind":     true,
	"coverleft":  true,
	"coverright": true,
	"coverup":    true,
	"coverdown":  true,
	"revealleft":  true,
	"revealright": true,
	"revealup":   true,
	"revealdown": true,
}

// Validate checks the transition id and duration.
func (t *Transition) Validate() error {
	if t == nil {
		return nil
	}
	if !xfadeTransitions[t.ID] {
		return fmt.Errorf("unknown transition %q", t.ID)
	}
	if t.Duration <= 0 {
		return errors.New("transition duration must be positive")
	}
	return nil
}
