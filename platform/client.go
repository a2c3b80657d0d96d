// Package platform defines the consumed chat-platform SDK surface. The real
// client lives outside this module; engines depend only on these interfaces
// so tests can substitute fakes.
package platform

import (
	"context"
	"fmt"
)

// MemberStatus is a principal's membership state in a chat.
type MemberStatus string

const (
	MemberCreator       MemberStatus = "creator"
	MemberAdministrator MemberStatus = "administrator"
	MemberMember        MemberStatus = "member"
	MemberRestricted    MemberStatus = "restricted"
	MemberLeft          MemberStatus = "left"
	MemberBanned        MemberStatus = "banned"
)

// MediaKind is the explicit tagged variant over supported media kinds.
type MediaKind string

const (
	MediaVideo       MediaKind = "video"
	MediaAudio       MediaKind = "audio"
	MediaDocument    MediaKind = "document"
	MediaPhoto       MediaKind = "photo"
	MediaAnimation   MediaKind = "animation"
	MediaApplication MediaKind = "application"
)

// MediaInfo carries the file attributes of a message's attachment.
type MediaInfo struct {
	Kind         MediaKind
	FileID       string
	FileUniqueID string
	FileName     string
	MimeType     string
	FileSize     int64
}

// Message is the subset of a platform message the pipelines consume. Empty
// marks a deleted or inaccessible message slot returned by range fetches.
type Message struct {
	ID      int
	ChatID  int64
	Caption string
	Media   *MediaInfo
	Empty   bool
}

// Chat identifies a resolved chat or channel.
type Chat struct {
	ID       int64
	Username string
	Title    string
}

// Bot describes the authenticated bot account.
type Bot struct {
	ID       int64
	Username string
}

// FloodWait is the platform's cooperative backpressure signal. Callers MUST
// honor it by sleeping the indicated duration.
type FloodWait struct {
	Seconds int
}

func (e *FloodWait) Error() string {
	return fmt.Sprintf("flood wait: retry after %d seconds", e.Seconds)
}

// AsFloodWait extracts a FloodWait from err if present.
func AsFloodWait(err error) (*FloodWait, bool) {
	if err == nil {
		return nil, false
	}
	fw, ok := err.(*FloodWait)
	if ok {
		return fw, true
	}
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return AsFloodWait(u.Unwrap())
	}
	return nil, false
}

// SendOptions tunes outbound media sends.
type SendOptions struct {
	Caption        string
	ProtectContent bool
}

// Client is the consumed platform SDK.
type Client interface {
	GetMe(ctx context.Context) (Bot, error)
	GetChat(ctx context.Context, ref string) (Chat, error)
	GetChatMember(ctx context.Context, chatID int64, principalID int64) (MemberStatus, error)

	// GetMessages fetches the given ids from a chat; deleted slots come back
	// with Empty set so range iteration stays aligned.
	GetMessages(ctx context.Context, chatID int64, ids []int) ([]Message, error)

	SendMessage(ctx context.Context, chatID int64, text string) (Message, error)
	SendCachedMedia(ctx context.Context, chatID int64, fileID string, opts SendOptions) (Message, error)
	Copy(ctx context.Context, toChatID int64, fromChatID int64, messageID int, opts SendOptions) (Message, error)
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error
	DeleteMessages(ctx context.Context, chatID int64, ids []int) error
}
