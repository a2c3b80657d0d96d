package access

import (
	"context"
	"strconv"

	"github.com/Laisky/zap"

	"github.com/leafdriven/mediadex/common/apperr"
	"github.com/leafdriven/mediadex/common/config"
	"github.com/leafdriven/mediadex/common/logger"
	"github.com/leafdriven/mediadex/platform"
)

// JoinTarget names a required channel a principal still has to join.
type JoinTarget struct {
	ChannelID int64
	Title     string
}

// SubscriptionGate enforces membership in every configured required channel
// before file delivery. With no channels configured it always passes.
type SubscriptionGate struct {
	client platform.Client
}

func NewSubscriptionGate(client platform.Client) *SubscriptionGate {
	return &SubscriptionGate{client: client}
}

// Check returns the channels the principal must still join. Admins and
// configured auth principals bypass the gate entirely. A membership lookup
// failure counts as not joined so access fails closed.
func (g *SubscriptionGate) Check(ctx context.Context, principalID int64) ([]JoinTarget, error) {
	if len(config.RequiredChannels) == 0 {
		return nil, nil
	}
	if config.IsOwner(principalID) || config.IsAdmin(principalID) || config.IsAuthPrincipal(principalID) {
		return nil, nil
	}

	var missing []JoinTarget
	for _, channelID := range config.RequiredChannels {
		status, err := g.client.GetChatMember(ctx, channelID, principalID)
		if err != nil {
			if fw, ok := platform.AsFloodWait(err); ok {
				return nil, apperr.Wrap(fw, apperr.CodeFloodWait,
					"membership check throttled for channel %d", channelID)
			}
			logger.Logger.Warn("membership lookup failed, treating as not joined",
				zap.Int64("channel", channelID),
				zap.Int64("principal", principalID),
				zap.Error(err))
			missing = append(missing, g.target(ctx, channelID))
			continue
		}
		switch status {
		case platform.MemberLeft, platform.MemberBanned:
			missing = append(missing, g.target(ctx, channelID))
		}
	}
	return missing, nil
}

func (g *SubscriptionGate) target(ctx context.Context, channelID int64) JoinTarget {
	t := JoinTarget{ChannelID: channelID}
	if chat, err := g.client.GetChat(ctx, strconv.FormatInt(channelID, 10)); err == nil {
		t.Title = chat.Title
	}
	return t
}
