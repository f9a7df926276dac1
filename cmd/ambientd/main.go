package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmribeiro/ambientd/internal/api"
	"github.com/dmribeiro/ambientd/internal/app"
	sig "github.com/dmribeiro/ambientd/internal/signal"
)

const version = "0.3.1"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ambientd",
	Short: "ambientd - autonomous signal routing for ambient actions",
	Long: `ambientd ingests short, noisy user signals (text, voice transcripts, OCR
output), routes them to finance/todo/crypto/link actions, and decides whether
to commit autonomously, ask for confirmation, or escalate to the fallback.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.toml")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(handshakesCmd)
	rootCmd.AddCommand(versionCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP decision API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(configPath)
		if err != nil {
			return err
		}
		defer a.Close()

		server := api.NewServer(a.Orchestrator, a.Handshakes, a.DB, a.Logger, a.Config.AuthToken)

		done := make(chan os.Signal, 1)
		signal.Notify(done, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-done
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = server.Shutdown(ctx)
		}()

		return server.ListenAndServe(a.Config.ListenAddr)
	},
}

var routeUser string

var routeCmd = &cobra.Command{
	Use:   "route [text...]",
	Short: "Route a single signal from the command line and print the result",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(configPath)
		if err != nil {
			return err
		}
		defer a.Close()

		s := sig.New(sig.TypeText, strings.Join(args, " "), nil)
		result, err := a.Orchestrator.Route(cmd.Context(), routeUser, s)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var handshakesLimit int

var handshakesCmd = &cobra.Command{
	Use:   "handshakes",
	Short: "List recent handshake audit records",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(configPath)
		if err != nil {
			return err
		}
		defer a.Close()

		events, err := a.Handshakes.Recent(cmd.Context(), routeUser, handshakesLimit)
		if err != nil {
			return err
		}
		for _, ev := range events {
			fmt.Printf("%s  %-10s  %-20s  %s\n",
				ev.CreatedAt.Format(time.RFC3339), ev.Module, ev.Status, ev.SignalID)
		}
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ambientd version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("ambientd " + version)
	},
}

func init() {
	routeCmd.Flags().StringVar(&routeUser, "user", "primary", "user id to route for")
	handshakesCmd.Flags().StringVar(&routeUser, "user", "primary", "user id to list for")
	handshakesCmd.Flags().IntVar(&handshakesLimit, "limit", 20, "maximum records to list")
}
