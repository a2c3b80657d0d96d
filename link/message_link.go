package link

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/leafdriven/mediadex/common/apperr"
	"github.com/leafdriven/mediadex/common/config"
)

// MessageRef is a parsed public or private message link.
type MessageRef struct {
	// ChatID is set for /c/ links; ChatUsername for public ones.
	ChatID       int64
	ChatUsername string
	MessageID    int
}

var linkHosts = map[string]bool{
	"t.me":         true,
	"telegram.me":  true,
	"telegram.dog": true,
}

var usernameRe = regexp.MustCompile(`^[A-Za-z]\w{3,30}[A-Za-z0-9]$`)

// ParseMessageLink accepts https://(t.me|telegram.me|telegram.dog)/[c/]<chat>/<msg_id>.
// Private /c/ links get the -100 channel prefix restored.
func ParseMessageLink(raw string) (*MessageRef, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInvalidLink, "unparseable link")
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, apperr.New(apperr.CodeInvalidLink, "unsupported scheme %q", u.Scheme)
	}
	if !linkHosts[strings.ToLower(u.Host)] {
		return nil, apperr.New(apperr.CodeInvalidLink, "unsupported host %q", u.Host)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	ref := &MessageRef{}

	switch len(parts) {
	case 2:
		if !usernameRe.MatchString(parts[0]) {
			return nil, apperr.New(apperr.CodeInvalidLink, "bad chat username %q", parts[0])
		}
		ref.ChatUsername = parts[0]
	case 3:
		if parts[0] != "c" {
			return nil, apperr.New(apperr.CodeInvalidLink, "unexpected path %q", u.Path)
		}
		internal, perr := strconv.ParseInt(parts[1], 10, 64)
		if perr != nil || internal <= 0 {
			return nil, apperr.New(apperr.CodeInvalidLink, "bad internal chat id %q", parts[1])
		}
		chatID, perr := strconv.ParseInt("-100"+parts[1], 10, 64)
		if perr != nil {
			return nil, apperr.New(apperr.CodeInvalidLink, "bad internal chat id %q", parts[1])
		}
		ref.ChatID = chatID
	default:
		return nil, apperr.New(apperr.CodeInvalidLink, "unexpected path %q", u.Path)
	}

	msgID, perr := strconv.Atoi(parts[len(parts)-1])
	if perr != nil || msgID <= 0 {
		return nil, apperr.New(apperr.CodeInvalidLink, "bad message id %q", parts[len(parts)-1])
	}
	ref.MessageID = msgID
	return ref, nil
}

// ParseMessageRange parses two links describing an inclusive range in the
// same chat, enforcing ordering and the configured size cap.
func ParseMessageRange(firstRaw, lastRaw string) (*MessageRef, int, int, error) {
	first, err := ParseMessageLink(firstRaw)
	if err != nil {
		return nil, 0, 0, err
	}
	last, err := ParseMessageLink(lastRaw)
	if err != nil {
		return nil, 0, 0, err
	}
	if first.ChatID != last.ChatID || first.ChatUsername != last.ChatUsername {
		return nil, 0, 0, apperr.New(apperr.CodeInvalidLink, "range links point at different chats")
	}
	if last.MessageID < first.MessageID {
		return nil, 0, 0, apperr.New(apperr.CodeInvalidLink,
			"range end %d precedes start %d", last.MessageID, first.MessageID)
	}
	if last.MessageID-first.MessageID+1 > config.MaxRangeSize {
		return nil, 0, 0, apperr.New(apperr.CodeInvalidLink,
			"range exceeds %d messages", config.MaxRangeSize)
	}
	return first, first.MessageID, last.MessageID, nil
}
