package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"talkie/internal/metrics"
	"talkie/internal/ws"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func init() {
	rootCmd.AddCommand(tailCmd)
}

var tailCmd = &cobra.Command{
	Use:   "tail <room-id>",
	Short: "Follow a room live until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, configPath)
		if err != nil {
			return err
		}
		defer a.close()

		roomID := args[0]
		a.service.SetViewedRoom(roomID)

		events, err := a.service.SubscribeLive(ctx, roomID)
		if err != nil {
			return err
		}

		g, gCtx := errgroup.WithContext(ctx)

		if a.cfg.MetricsAddr != "" {
			srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: metrics.Handler()}
			g.Go(func() error {
				err := srv.ListenAndServe()
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gCtx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
		}

		g.Go(func() error {
			for ev := range events {
				switch {
				case ev.Message != nil:
					who := ev.Message.Sender.Nickname
					if ev.Message.IsMine {
						who = "me"
					}
					fmt.Printf("%s: %s\n", who, ev.Message.Content)
				case ev.Err != nil:
					var perr *ws.ProtocolError
					if errors.As(ev.Err, &perr) {
						return fmt.Errorf("subscription ended: %w", perr)
					}
					fmt.Printf("skipping event: %v\n", ev.Err)
				}
			}
			return nil
		})

		return g.Wait()
	},
}
