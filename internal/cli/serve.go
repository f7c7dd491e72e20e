package cli

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/config"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			var c server.Config
			if err := config.Load(configPath, &c); err != nil {
				return err
			}

			s, err := server.Init(c)
			if err != nil {
				return err
			}

			go s.Start()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop

			slog.Info("serve: shutting down")
			s.Shutdown()
			return nil
		},
	}
}
