// Package admin guards the privileged /stop command.
package admin

import (
	"github.com/sirupsen/logrus"

	"pix_telegram_bot/internal/logging"
)

// User facing replies.
const (
	MsgShuttingDown = "⛔ Bot desligando..."
	MsgForbidden    = "🚫 Você não tem permissão para parar o bot."
)

// Decision is the outcome of a /stop request.
type Decision struct {
	Reply string
	Stop  bool
}

// Guard authorizes the configured administrator.
type Guard struct {
	adminID int64
	logger  *logrus.Entry
}

// NewGuard constructs a Guard for adminID. An adminID of 0 authorizes nobody.
func NewGuard(adminID int64, logger *logrus.Entry) *Guard {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Guard{
		adminID: adminID,
		logger:  logger,
	}
}

// IsAdmin reports whether userID is the configured administrator.
func (g *Guard) IsAdmin(userID int64) bool {
	if g == nil || g.adminID == 0 || userID == 0 {
		return false
	}

	return userID == g.adminID
}

// RequestStop decides how to answer a /stop issued by userID. The caller sends
// the reply first and only then stops polling when Stop is set.
func (g *Guard) RequestStop(userID int64) Decision {
	if !g.IsAdmin(userID) {
		if g != nil {
			g.logger.WithFields(logging.Fields{
				"event":   "stop_denied",
				"user_id": userID,
			}).Warn("unauthorized stop request")
		}
		return Decision{Reply: MsgForbidden}
	}

	g.logger.WithFields(logging.Fields{
		"event":   "stop_requested",
		"user_id": userID,
	}).Info("administrator requested shutdown")

	return Decision{Reply: MsgShuttingDown, Stop: true}
}
