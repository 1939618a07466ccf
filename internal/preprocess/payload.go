package preprocess

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// BufferRef locates a binary section inside the packed payload. It
// serializes as ["buffer", start, end]; offsets are relative to the start of
// the binary area that follows the JSON descriptor.
type BufferRef struct {
	Start int
	End   int
}

// MarshalJSON implements json.Marshaler.
func (r BufferRef) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{"buffer", r.Start, r.End})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *BufferRef) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 3 {
		return fmt.Errorf("buffer ref has %d elements, want 3", len(raw))
	}
	var tag string
	if err := json.Unmarshal(raw[0], &tag); err != nil || tag != "buffer" {
		return errors.New("buffer ref missing \"buffer\" tag")
	}
	if err := json.Unmarshal(raw[1], &r.Start); err != nil {
		return err
	}
	return json.Unmarshal(raw[2], &r.End)
}

// Descriptor is the JSON header of a packed preprocessor response.
type Descriptor struct {
	HasMask    bool       `json:"hasMask"`
	HasAudio   bool       `json:"hasAudio"`
	HasClip    bool       `json:"hasClip"`
	Buffer     *BufferRef `json:"buffer,omitempty"`
	MaskBuffer *BufferRef `json:"maskBuffer,omitempty"`
}

// Pack encodes a response as `<len>!<json><binary...>`: an ASCII decimal
// header length, a bang, the JSON descriptor, then the binary sections the
// descriptor's buffer refs point into.
func Pack(desc Descriptor, main, mask []byte) ([]byte, error) {
	offset := 0
	if main != nil {
		desc.Buffer = &BufferRef{Start: offset, End: offset + len(main)}
		offset += len(main)
	}
	if mask != nil {
		desc.MaskBuffer = &BufferRef{Start: offset, End: offset + len(mask)}
		desc.HasMask = true
	}

	header, err := json.Marshal(desc)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload descriptor: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(header) + len(main) + len(mask) + 16)
	buf.WriteString(strconv.Itoa(len(header)))
	buf.WriteByte('!')
	buf.Write(header)
	buf.Write(main)
	buf.Write(mask)
	return buf.Bytes(), nil
}

// Unpack decodes a packed payload back into its descriptor and binary
// sections. The page-side adapter performs the same split in JS.
func Unpack(data []byte) (*Descriptor, []byte, []byte, error) {
	bang := bytes.IndexByte(data, '!')
	if bang < 1 {
		return nil, nil, nil, errors.New("packed payload missing length header")
	}
	headerLen, err := strconv.Atoi(string(data[:bang]))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid payload length header: %w", err)
	}
	body := data[bang+1:]
	if headerLen < 0 || headerLen > len(body) {
		return nil, nil, nil, fmt.Errorf("payload header length %d exceeds body %d", headerLen, len(body))
	}

	var desc Descriptor
	if err := json.Unmarshal(body[:headerLen], &desc); err != nil {
		return nil, nil, nil, fmt.Errorf("unmarshaling payload descriptor: %w", err)
	}

	binary := body[headerLen:]
	section := func(r *BufferRef) ([]byte, error) {
		if r == nil {
			return nil, nil
		}
		if r.Start < 0 || r.End < r.Start || r.End > len(binary) {
			return nil, fmt.Errorf("buffer ref [%d,%d) outside binary area of %d bytes",
				r.Start, r.End, len(binary))
		}
		return binary[r.Start:r.End], nil
	}

	main, err := section(desc.Buffer)
	if err != nil {
		return nil, nil, nil, err
	}
	mask, err := section(desc.MaskBuffer)
	if err != nil {
		return nil, nil, nil, err
	}
	return &desc, main, mask, nil
}
