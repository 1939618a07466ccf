// Package audio defines the audio descriptor exchanged between the in-page
// media adapter, the preprocessor and the mixer.
package audio

import (
	"errors"
	"fmt"
	"math"
)

// Audio describes one audio track on the composite timeline. Times are
// milliseconds. StartTime/EndTime place the track on the output timeline;
// SeekStart/SeekEnd clip the source.
type Audio struct {
	ID   int64  `json:"id"`
	Path string `json:"path,omitempty"` // local file, set after preprocessing
	URL  string `json:"url,omitempty"`

	StartTime int64 `json:"startTime"`
	EndTime   int64 `json:"endTime,omitempty"`
	Duration  int64 `json:"duration,omitempty"` // source duration when known

	Loop   bool `json:"loop,omitempty"`
	Volume int  `json:"volume"` // 0..100

	SeekStart int64 `json:"seekStart,omitempty"`
	SeekEnd   int64 `json:"seekEnd,omitempty"`

	FadeInDuration  int64 `json:"fadeInDuration,omitempty"`
	FadeOutDuration int64 `json:"fadeOutDuration,omitempty"`

	RetryFetches int  `json:"retryFetchs,omitempty"`
	IgnoreCache  bool `json:"ignoreCache,omitempty"`
}

// Validate checks descriptor invariants.
func (a *Audio) Validate() error {
	if a.Path == "" && a.URL == "" {
		return errors.New("audio requires a path or url")
	}
	if a.Volume < 0 || a.Volume > 100 {
		return fmt.Errorf("audio volume %d out of range 0-100", a.Volume)
	}
	if a.SeekStart > 0 && a.SeekEnd > 0 && a.SeekStart > a.SeekEnd {
		return fmt.Errorf("audio seekStart %dms after seekEnd %dms", a.SeekStart, a.SeekEnd)
	}
	if a.EndTime > 0 && a.StartTime > a.EndTime {
		return fmt.Errorf("audio startTime %dms after endTime %dms", a.StartTime, a.EndTime)
	}
	return nil
}

// ClampEndTime bounds an open-ended or overlong track to the composite
// duration. An unset or infinite end time becomes the full duration.
func (a *Audio) ClampEndTime(durationMillis int64) {
	if a.EndTime <= 0 || a.EndTime > durationMillis || a.EndTime == math.MaxInt64 {
		a.EndTime = durationMillis
	}
}

// Shifted returns a copy with the timeline offset applied. Used by the chunk
// synthesizer to re-tag per-chunk descriptors into composite time.
func (a Audio) Shifted(offsetMillis int64) Audio {
	a.StartTime += offsetMillis
	if a.EndTime > 0 {
		a.EndTime += offsetMillis
	}
	return a
}
