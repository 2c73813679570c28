package messaging

import (
	"strings"

	"github.com/wolfman30/callback-scheduler/pkg/logging"
)

// Membership answers whether an identifier is on the roster.
type Membership interface {
	Contains(identifier string) bool
}

// Drop reasons reported by Gate.Admit.
const (
	DropGroup     = "group"
	DropNotRoster = "not_roster"
	DropEmpty     = "empty"
)

// Gate filters inbound events before they reach the conversation driver.
type Gate struct {
	roster Membership
	logger *logging.Logger
}

// NewGate builds a gate. A nil roster admits every sender.
func NewGate(roster Membership, logger *logging.Logger) *Gate {
	if logger == nil {
		logger = logging.Default()
	}
	return &Gate{roster: roster, logger: logger}
}

// Admit reports whether ev should be processed, and if not, why.
func (g *Gate) Admit(ev InboundEvent) (bool, string) {
	switch {
	case ev.Group:
		g.logger.Debug("dropping group message", "identifier", ev.From)
		return false, DropGroup
	case strings.TrimSpace(ev.From) == "" || strings.TrimSpace(ev.Text) == "":
		return false, DropEmpty
	case g.roster != nil && !g.roster.Contains(ev.From):
		g.logger.Debug("dropping message from non-roster sender", "identifier", ev.From)
		return false, DropNotRoster
	}
	return true, ""
}
