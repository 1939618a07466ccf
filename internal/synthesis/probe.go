package synthesis

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/asticode/go-astits"
)

// ChunkInfo summarizes an encoded MPEG-TS intermediate.
type ChunkInfo struct {
	HasPAT          bool
	HasPMT          bool
	ElementaryPIDs  []uint16
	PESPackets      int
	DurationMillis  int64
	firstPTS        int64
	lastPTS         int64
	sawPTS          bool
}

// ProbeChunk walks a chunk's transport stream and verifies it is spliceable:
// program tables present, at least one elementary stream, and a usable PTS
// range. Broken intermediates fail here instead of mid-splice.
func ProbeChunk(ctx context.Context, path string) (*ChunkInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening chunk: %w", err)
	}
	defer f.Close()

	info := &ChunkInfo{}
	dmx := astits.NewDemuxer(ctx, bufio.NewReader(f))
	for {
		d, err := dmx.NextData()
		if err != nil {
			if errors.Is(err, astits.ErrNoMorePackets) {
				break
			}
			return nil, fmt.Errorf("demuxing chunk %s: %w", path, err)
		}

		switch {
		case d.PAT != nil:
			info.HasPAT = true
		case d.PMT != nil:
			info.HasPMT = true
			for _, es := range d.PMT.ElementaryStreams {
				info.ElementaryPIDs = append(info.ElementaryPIDs, es.ElementaryPID)
			}
		case d.PES != nil:
			info.PESPackets++
			if h := d.PES.Header; h != nil && h.OptionalHeader != nil && h.OptionalHeader.PTS != nil {
				pts := h.OptionalHeader.PTS.Base
				if !info.sawPTS || pts < info.firstPTS {
					info.firstPTS = pts
				}
				if !info.sawPTS || pts > info.lastPTS {
					info.lastPTS = pts
				}
				info.sawPTS = true
			}
		}
	}

	if info.sawPTS {
		// PTS runs at 90 kHz.
		info.DurationMillis = (info.lastPTS - info.firstPTS) / 90
	}

	if !info.HasPAT || !info.HasPMT {
		return info, fmt.Errorf("chunk %s missing program tables", path)
	}
	if len(info.ElementaryPIDs) == 0 {
		return info, fmt.Errorf("chunk %s carries no elementary streams", path)
	}
	if info.PESPackets == 0 {
		return info, fmt.Errorf("chunk %s carries no PES packets", path)
	}
	return info, nil
}
