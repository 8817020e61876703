package notifier

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// OpsNotifier pushes administrator-actionable alerts (scheduler task
// failures, configuration errors) to a Discord channel. Alerts are best
// effort and never block the caller.
type OpsNotifier struct {
	session   *discordgo.Session
	channelID string
	log       *zap.Logger
}

func NewOpsNotifier(botToken, channelID string, log *zap.Logger) (*OpsNotifier, error) {
	if botToken == "" || channelID == "" {
		return nil, fmt.Errorf("discord ops notifier not configured")
	}
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, err
	}
	return &OpsNotifier{session: session, channelID: channelID, log: log}, nil
}

// TaskFailed reports a scheduler task failure.
func (n *OpsNotifier) TaskFailed(task string, err error) {
	n.send(fmt.Sprintf("⚠️ **Scheduled task failed**\n**Task:** %s\n**Error:** %v", task, err))
}

// ConfigurationError reports a configuration problem needing an operator.
func (n *OpsNotifier) ConfigurationError(msg string) {
	n.send(fmt.Sprintf("🛑 **Configuration error**\n%s", msg))
}

func (n *OpsNotifier) send(message string) {
	if n == nil || n.session == nil {
		return
	}
	if _, err := n.session.ChannelMessageSend(n.channelID, message); err != nil {
		n.log.Warn("failed to send ops alert", zap.Error(err))
	}
}
