// Package logsink es el canal de modo dev: loguea el envío y reporta
// éxito. Entra en juego cuando no hay bridge/SMTP configurados, igual que
// los repos in-memory cuando falta DB_DSN.
package logsink

import (
	"context"

	"github.com/PetSOS-teamsite/petsos-sub001/internal/platform/logger"
	"github.com/PetSOS-teamsite/petsos-sub001/internal/ports/channels"
)

type Sender struct {
	channel string
	log     logger.Logger
}

func New(channel string, log logger.Logger) *Sender {
	return &Sender{channel: channel, log: log}
}

func (s *Sender) Send(ctx context.Context, address, content string) (channels.Receipt, error) {
	s.log.Info("dev channel send", map[string]any{
		"channel": s.channel,
		"to":      address,
		"bytes":   len(content),
	})
	return channels.Receipt{}, nil
}
