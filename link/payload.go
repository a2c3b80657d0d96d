// Package link encodes and parses the shareable deep-link payloads and
// public message links the handlers exchange with the platform.
package link

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/leafdriven/mediadex/common/apperr"
)

// PayloadKind discriminates decoded start payloads.
type PayloadKind string

const (
	KindFile     PayloadKind = "file"
	KindRange    PayloadKind = "range"
	KindBatchRef PayloadKind = "batch_ref"
	KindSendAll  PayloadKind = "send_all"
)

// Payload is a decoded start parameter.
type Payload struct {
	Kind PayloadKind

	// KindFile
	FileIdentifier string
	Protect        bool

	// KindRange
	ChatID int64
	FromID int64
	ToID   int64

	// KindBatchRef
	BatchRef string

	// KindSendAll
	SessionKey string
}

func b64encode(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func b64decode(s string) (string, error) {
	// Tolerate padded input from older links.
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// EncodeFile builds the start payload for a single file.
func EncodeFile(identifier string, protect bool) string {
	prefix := "file_"
	if protect {
		prefix = "filep_"
	}
	return b64encode(prefix + identifier)
}

// EncodeRange builds the start payload for a message range.
func EncodeRange(chatID, fromID, toID int64, protect bool) string {
	mode := "batch"
	if protect {
		mode = "pbatch"
	}
	inner := b64encode(fmt.Sprintf("%d_%d_%d_%s", fromID, toID, chatID, mode))
	return b64encode("DSTORE-" + inner)
}

// EncodeBatchRef builds the start payload for a persisted batch link.
func EncodeBatchRef(ref string) string {
	return b64encode("PBLINK-" + ref)
}

// EncodeSendAll builds the start payload for a result session.
func EncodeSendAll(sessionKey string) string {
	return b64encode("sendall_" + sessionKey)
}

// DecodePayload parses a start parameter into a typed payload. Unknown or
// malformed payloads return INVALID_LINK.
func DecodePayload(raw string) (*Payload, error) {
	decoded, err := b64decode(raw)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInvalidLink, "undecodable start payload")
	}

	switch {
	case strings.HasPrefix(decoded, "filep_"):
		return filePayload(strings.TrimPrefix(decoded, "filep_"), true)
	case strings.HasPrefix(decoded, "file_"):
		return filePayload(strings.TrimPrefix(decoded, "file_"), false)
	case strings.HasPrefix(decoded, "DSTORE-"):
		return rangePayload(strings.TrimPrefix(decoded, "DSTORE-"))
	case strings.HasPrefix(decoded, "PBLINK-"):
		ref := strings.TrimPrefix(decoded, "PBLINK-")
		if ref == "" {
			return nil, apperr.New(apperr.CodeInvalidLink, "empty batch ref")
		}
		return &Payload{Kind: KindBatchRef, BatchRef: ref}, nil
	case strings.HasPrefix(decoded, "sendall_"):
		key := strings.TrimPrefix(decoded, "sendall_")
		if key == "" {
			return nil, apperr.New(apperr.CodeInvalidLink, "empty session key")
		}
		return &Payload{Kind: KindSendAll, SessionKey: key}, nil
	}
	return nil, apperr.New(apperr.CodeInvalidLink, "unrecognized start payload")
}

func filePayload(identifier string, protect bool) (*Payload, error) {
	if identifier == "" {
		return nil, apperr.New(apperr.CodeInvalidLink, "empty file identifier")
	}
	return &Payload{Kind: KindFile, FileIdentifier: identifier, Protect: protect}, nil
}

// rangePayload decodes the inner DSTORE tuple <from>_<to>_<chat>_<mode>.
func rangePayload(inner string) (*Payload, error) {
	decoded, err := b64decode(inner)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInvalidLink, "undecodable range payload")
	}
	parts := strings.Split(decoded, "_")
	if len(parts) != 4 {
		return nil, apperr.New(apperr.CodeInvalidLink, "range payload must have 4 fields, got %d", len(parts))
	}
	from, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, apperr.New(apperr.CodeInvalidLink, "bad range start %q", parts[0])
	}
	to, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, apperr.New(apperr.CodeInvalidLink, "bad range end %q", parts[1])
	}
	chat, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, apperr.New(apperr.CodeInvalidLink, "bad chat id %q", parts[2])
	}
	var protect bool
	switch parts[3] {
	case "batch":
	case "pbatch":
		protect = true
	default:
		return nil, apperr.New(apperr.CodeInvalidLink, "bad range mode %q", parts[3])
	}
	if to < from {
		return nil, apperr.New(apperr.CodeInvalidLink, "range end %d precedes start %d", to, from)
	}
	return &Payload{Kind: KindRange, ChatID: chat, FromID: from, ToID: to, Protect: protect}, nil
}
