package console

import (
	"context"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/Tyrowin/relaychat/internal/chat"
	"github.com/Tyrowin/relaychat/internal/hub"
)

// HubControl is what the hub console drives.
type HubControl interface {
	SendToAll(message string, exclude ...string) int
	Count() int
}

// RunHub reads operator lines until quit, end of input or ctx is done.
// "clients" logs the peer count; any other line is sent verbatim to every
// peer. Stopping the hub is left to the caller.
func RunHub(ctx context.Context, in io.Reader, h HubControl) error {
	lines := readLines(in)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case line, ok := <-lines:
			if !ok {
				log.Info().Str("module", "console").Msg("input closed")
				return nil
			}
			switch {
			case isBlank(line):
			case chat.IsCommand(line, chat.CommandQuit):
				log.Info().Str("module", "console").Msg("operator requested shutdown")
				return nil
			case chat.IsCommand(line, chat.CommandClients):
				log.Info().Str("module", "console").Int("clients", h.Count()).Msg("connected clients")
			default:
				n := h.SendToAll(line)
				log.Info().Str("module", "console").Str("text", line).Int("delivered", n).Msg("broadcast")
			}
		}
	}
}

// HubObserver logs hub events for the operator.
func HubObserver() hub.Observer {
	return hub.ObserverFunc(func(e hub.Event) {
		switch e.Kind {
		case hub.ClientConnected:
			log.Info().Str("module", "console").Str("peer", e.Peer.DisplayName()).Msg("connected")
		case hub.ClientDisconnected:
			log.Info().Str("module", "console").Str("peer", e.Peer.DisplayName()).Msg("disconnected")
		case hub.ClientConnectionError:
			log.Error().Err(e.Err).Str("module", "console").Str("peer", e.Peer.DisplayName()).Msg("connection error")
		case hub.MessageReceived:
			log.Info().Str("module", "console").Msg(chat.FormatChat(e.Peer.DisplayName(), e.Text))
		case hub.NicknameChanged:
			log.Info().Str("module", "console").Msg(chat.FormatNicknameChange(e.OldName, e.Peer.DisplayName()))
		}
	})
}
