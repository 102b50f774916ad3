package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/soyeahso/sipdash/internal/events"
	"github.com/soyeahso/sipdash/internal/logging"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	var (
		noSIP       bool
		noChat      bool
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Connect to the hubs and log live updates until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if metricsAddr == "" {
				metricsAddr = a.cfg.Metrics.Addr
			}
			if metricsAddr != "" {
				srv, err := serveMetrics(a, metricsAddr)
				if err != nil {
					return err
				}
				defer srv.Shutdown(context.Background())
			}

			if !noSIP {
				logEvents(a.sipEvents, a.log.Sub("watch").With("hub", "sip"))
				if !a.sip.InitializeConnection(ctx) {
					return fmt.Errorf("sip: %s", a.sip.Error())
				}
				st := a.sip.State()
				a.log.Info().
					Int("accounts", len(st.Accounts)).
					Msg("SIP hub ready")
				for _, acc := range st.Accounts {
					if !a.sip.SubscribeToAccount(ctx, acc.ID) {
						a.log.Warn().Str("account", acc.AccountID).Msg("subscription deferred until reconnect")
					}
				}
				a.sip.FetchCalls(ctx)
			}

			if !noChat {
				logEvents(a.chatEvents, a.log.Sub("watch").With("hub", "chat"))
				if !a.chat.InitializeConnection(ctx) {
					return fmt.Errorf("chat: %s", a.chat.Error())
				}
				a.log.Info().Int("chats", len(a.chat.Chats())).Msg("chat hub ready")
			}

			<-ctx.Done()
			a.log.Info().Msg("shutting down")
			return nil
		},
	}

	cmd.Flags().BoolVar(&noSIP, "no-sip", false, "do not connect to the SIP hub")
	cmd.Flags().BoolVar(&noChat, "no-chat", false, "do not connect to the chat hub")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides metrics.addr)")
	return cmd
}

// logEvents logs every event a dispatcher delivers.
func logEvents(d *events.Dispatcher, log *logging.Logger) {
	kinds := append([]events.Kind{events.KindConnected, events.KindDisconnected, events.KindReconnected}, events.WireKinds...)
	for _, kind := range kinds {
		d.On(kind, "watch-log", func(_ context.Context, evt events.Event) error {
			e := log.Info().Str("event", string(evt.Kind()))
			switch v := evt.(type) {
			case events.AccountUpdate:
				e = e.Str("account", v.Account.AccountID).Bool("active", v.Account.IsActive)
			case events.AccountListUpdate:
				e = e.Str("account", v.Account.AccountID).Bool("active", v.Account.IsActive)
			case events.CallUpdate:
				e = e.Int64("call", v.Call.CallID).Str("status", string(v.Call.Status))
			case events.CallListUpdate:
				e = e.Int64("call", v.Call.CallID).Str("status", string(v.Call.Status))
			case events.NewMessage:
				e = e.Int64("chat", v.ChatID).Str("sender", v.Message.Sender)
			case events.MessageReceived:
				e = e.Int64("chat", v.Message.ChatID).Str("sender", v.Message.Sender)
			case events.VoiceActivity:
				e = e.Int64("call", v.CallID).Bool("speaking", v.Active)
			case events.MediaStateChange:
				e = e.Int64("call", v.CallID).Str("media", v.State)
			case events.Disconnected:
				e = e.AnErr("cause", v.Err)
			}
			e.Msg("hub event")
			return nil
		})
	}
}

func serveMetrics(a *app, addr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Msg("metrics server")
		}
	}()
	a.log.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")
	return srv, nil
}
