// Command relaychat joins the chat hub on the given port, or becomes the hub
// when none is running there.
//
//	relaychat <port>
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/Tyrowin/relaychat/internal/chat"
	"github.com/Tyrowin/relaychat/internal/config"
	"github.com/Tyrowin/relaychat/internal/console"
	"github.com/Tyrowin/relaychat/internal/hub"
	"github.com/Tyrowin/relaychat/internal/logging"
	"github.com/Tyrowin/relaychat/internal/peer"
	"github.com/Tyrowin/relaychat/internal/transport"
	"github.com/Tyrowin/relaychat/internal/transport/ws"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) int {
	cfg, err := config.Load("")
	if err != nil {
		log.Error().Err(err).Str("module", "main").Msg("load configuration")
		return 1
	}

	closer, err := logging.Setup(cfg.Log)
	if err != nil {
		log.Error().Err(err).Str("module", "main").Msg("set up logging")
		return 1
	}
	defer func() { _ = closer.Close() }()

	if len(args) != 1 {
		log.Error().Str("module", "main").Msg("usage: relaychat <port>")
		waitForEnter(stdin, stdout)
		return 1
	}

	port, err := chat.ValidatePortNumber(args[0])
	if err != nil {
		log.Error().Err(err).Str("module", "main").Msg("invalid port")
		waitForEnter(stdin, stdout)
		return 1
	}

	if err := config.Watch("", func(c *config.Config) { logging.SetLevel(c.Log.Level) }); err != nil {
		log.Warn().Err(err).Str("module", "main").Msg("config hot reload disabled")
	}

	opts := ws.OptionsFromConfig(cfg)
	p := peer.New(ws.NewDialer(opts), peer.Options{CloseTimeout: cfg.CloseTimeout}, console.PeerObserver())

	err = p.Connect(ctx, cfg.PeerURL(port))
	var notFound *transport.ServerNotFoundError
	switch {
	case err == nil:
		return runPeer(ctx, stdin, p)
	case errors.As(err, &notFound):
		log.Info().Str("module", "main").Str("address", notFound.Address).Msg("no hub found, starting one")
		return runHub(ctx, cfg, opts, port, stdin)
	default:
		log.Error().Err(err).Str("module", "main").Msg("connect to hub")
		return 1
	}
}

func runPeer(ctx context.Context, stdin io.Reader, p *peer.Peer) int {
	log.Info().Str("module", "main").Msg("type messages to chat, 'nick NAME' to rename, 'quit' to leave")
	if err := console.RunPeer(ctx, stdin, p); err != nil {
		log.Error().Err(err).Str("module", "main").Msg("connection to hub lost")
		return 1
	}
	return 0
}

func runHub(ctx context.Context, cfg *config.Config, opts ws.Options, port int, stdin io.Reader) int {
	srv := ws.NewServer(opts)
	h := hub.New(srv, console.HubObserver())
	srv.Handle("/metrics", h.MetricsHandler())

	if err := h.Start(cfg.ListenAddress(port)); err != nil {
		log.Error().Err(err).Str("module", "main").Msg("start hub")
		return 1
	}
	log.Info().Str("module", "main").Msg("hosting; type to broadcast, 'clients' to count peers, 'quit' to stop")

	if err := console.RunHub(ctx, stdin, h); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Str("module", "main").Msg("console stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := h.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Str("module", "main").Msg("hub shutdown")
		return 1
	}
	log.Info().Str("module", "main").Msg("hub stopped")
	return 0
}

func waitForEnter(stdin io.Reader, stdout io.Writer) {
	_, _ = fmt.Fprintln(stdout, "Press Enter to exit")
	_, _ = bufio.NewReader(stdin).ReadString('\n')
}
