package console

import (
	"context"
	"io"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/relaychat/internal/chat"
	"github.com/Tyrowin/relaychat/internal/peer"
)

// QuitReason is the close reason sent when the operator leaves.
const QuitReason = "User quits connection"

// PeerControl is what the peer console drives.
type PeerControl interface {
	State() peer.State
	Send(text string) error
	Receive() (string, error)
	Disconnect(reason string) error
}

// RunPeer runs the receive loop and the operator loop until the connection
// leaves the open state. It returns the receive error, if any.
func RunPeer(ctx context.Context, in io.Reader, p PeerControl) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		for p.State() == peer.StateOpen {
			if _, err := p.Receive(); err != nil {
				return err
			}
		}
		return nil
	})

	g.Go(func() error {
		lines := readLines(in)
		for {
			select {
			case <-gctx.Done():
				if p.State() == peer.StateOpen {
					return p.Disconnect(QuitReason)
				}
				return nil

			case line, ok := <-lines:
				if !ok || chat.IsCommand(line, chat.CommandQuit) {
					return p.Disconnect(QuitReason)
				}
				switch {
				case isBlank(line):
				case chat.IsCommand(line, chat.CommandClients):
					log.Warn().Str("module", "console").Msg("the clients command is only available on the hub")
				default:
					if err := p.Send(line); err != nil {
						log.Error().Err(err).Str("module", "console").Msg("send failed")
					}
				}
			}
		}
	})

	return g.Wait()
}

// PeerObserver logs peer events for the operator.
func PeerObserver() peer.Observer {
	return peer.ObserverFunc(func(e peer.Event) {
		switch e.Kind {
		case peer.Connected:
			log.Info().Str("module", "console").Str("hub", e.Address).Msg("connected")
		case peer.MessageSent:
			log.Debug().Str("module", "console").Str("text", e.Text).Msg("sent")
		case peer.MessageReceived:
			log.Info().Str("module", "console").Msg(e.Text)
		case peer.CloseReceived:
			log.Info().Str("module", "console").Str("reason", e.Reason).Msg("hub closed the connection")
		case peer.Disconnected:
			log.Info().Str("module", "console").Str("reason", e.Reason).Msg("disconnected")
		}
	})
}
