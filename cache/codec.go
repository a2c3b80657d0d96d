package cache

import (
	"bytes"
	"compress/zlib"
	"encoding/gob"
	"io"

	"github.com/Laisky/errors/v2"
	json "github.com/goccy/go-json"
)

// Value codec. A one-byte tag prefixes every payload so readers can pick the
// decoder without guessing:
//
//	'j'  JSON-encoded scalar
//	'm'  gob-encoded map or list, readable without type information
//	'p'  gob-encoded object; readers must supply the destination type
//	'c'  compressed; the next byte is the inner format tag
//
// Untagged payloads run a legacy decode chain (JSON, then raw text) so data
// written before the codec existed stays readable.

const (
	tagJSON       = 'j'
	tagStructured = 'm'
	tagObject     = 'p'
	tagCompressed = 'c'
)

const (
	// compressMinSize is the encoded size above which compression is tried.
	compressMinSize = 1024
	// compressMinRatio is the minimum fraction saved for compression to win.
	compressMinRatio = 0.10
)

// Container types carried inside 'm' payloads travel behind an interface, so
// gob needs their concrete types registered up front.
func init() {
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register([]string{})
	gob.Register([]int64{})
	gob.Register(map[string]string{})
}

// Encode serializes v with a format tag, compressing large payloads when it
// pays off.
func Encode(v any) ([]byte, error) {
	var (
		tag     byte
		payload []byte
		err     error
	)
	switch v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		tag = tagJSON
		payload, err = json.Marshal(v)
	case map[string]any, []any, []string, []int64, map[string]string:
		tag = tagStructured
		payload, err = gobEncodeAny(v)
	default:
		tag = tagObject
		payload, err = gobEncodeValue(v)
	}
	if err != nil {
		return nil, errors.Wrap(err, "encode cache value")
	}

	out := make([]byte, 0, len(payload)+1)
	out = append(out, tag)
	out = append(out, payload...)

	if len(payload) > compressMinSize {
		var buf bytes.Buffer
		buf.WriteByte(tagCompressed)
		buf.WriteByte(tag)
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(payload); err == nil && zw.Close() == nil {
			if float64(buf.Len()) <= float64(len(out))*(1-compressMinRatio) {
				return buf.Bytes(), nil
			}
		}
	}
	return out, nil
}

// gobEncodeAny encodes v behind an interface so readers can recover the
// concrete container without knowing its type.
func gobEncodeAny(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// gobEncodeValue encodes the concrete value directly; readers decode into a
// destination of the same type.
func gobEncodeValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode deserializes a tagged payload. Corrupt data returns (nil, false)
// rather than an error; callers treat it as a cache miss. Object payloads
// carry no recoverable type information, so they too read as absent here;
// use DecodeInto for those.
func Decode(data []byte) (any, bool) {
	if len(data) == 0 {
		return nil, false
	}
	switch data[0] {
	case tagCompressed:
		if len(data) < 3 {
			return nil, false
		}
		payload, ok := inflate(data[2:])
		if !ok {
			return nil, false
		}
		return decodePayload(data[1], payload)
	case tagJSON, tagStructured, tagObject:
		return decodePayload(data[0], data[1:])
	default:
		return decodeLegacy(data)
	}
}

// DecodeInto deserializes a tagged payload into a typed destination.
func DecodeInto(data []byte, dst any) bool {
	if len(data) == 0 {
		return false
	}
	tag := byte(0)
	payload := data
	switch data[0] {
	case tagCompressed:
		if len(data) < 3 {
			return false
		}
		raw, ok := inflate(data[2:])
		if !ok {
			return false
		}
		tag = data[1]
		payload = raw
	case tagJSON, tagStructured, tagObject:
		tag = data[0]
		payload = data[1:]
	}

	switch tag {
	case tagObject:
		return gob.NewDecoder(bytes.NewReader(payload)).Decode(dst) == nil
	case tagStructured:
		// Recover the container, then bridge it into the caller's type.
		v, ok := gobDecodeAny(payload)
		if !ok {
			return false
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return false
		}
		return json.Unmarshal(raw, dst) == nil
	default:
		return json.Unmarshal(payload, dst) == nil
	}
}

func inflate(data []byte) ([]byte, bool) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, false
	}
	payload, err := io.ReadAll(zr)
	_ = zr.Close()
	if err != nil {
		return nil, false
	}
	return payload, true
}

func decodePayload(tag byte, payload []byte) (any, bool) {
	switch tag {
	case tagJSON:
		var v any
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, false
		}
		return v, true
	case tagStructured:
		return gobDecodeAny(payload)
	default:
		return nil, false
	}
}

func gobDecodeAny(payload []byte) (any, bool) {
	var v any
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

// decodeLegacy handles payloads written before tagging: JSON first, then
// raw text.
func decodeLegacy(data []byte) (any, bool) {
	var v any
	if err := json.Unmarshal(data, &v); err == nil {
		return v, true
	}
	return string(data), true
}
