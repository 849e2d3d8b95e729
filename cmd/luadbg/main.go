// Package main is the entry point for the luadbg debugger.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dmoreno/luadbg/internal/cli"
	"github.com/dmoreno/luadbg/internal/config"
	"github.com/dmoreno/luadbg/internal/dbg"
	"github.com/dmoreno/luadbg/internal/logging"
	"github.com/dmoreno/luadbg/internal/luart"
	"github.com/dmoreno/luadbg/internal/rpc"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

var (
	flagConfig   string
	flagListen   string
	flagLogLevel string
	flagDepth    int
	flagStart    bool
	flagAddr     string
	flagAttempts int
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "luadbg",
		Short:        "remote debugger for Lua scripts",
		Version:      fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: luadbg.yaml lookup)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")

	exec := &cobra.Command{
		Use:   "exec <script.lua>",
		Short: "run a script under the debug engine",
		Long: "Runs a Lua script under the debug engine and exposes the control\n" +
			"channel for a controller to attach. The script does not start\n" +
			"executing until the controller sends start (or --start is given).",
		Args: cobra.ExactArgs(1),
		RunE: runExec,
	}
	exec.Flags().StringVar(&flagListen, "listen", "", "control channel address (host:port)")
	exec.Flags().IntVar(&flagDepth, "depth", 0, "serialization depth for evaluation results")
	exec.Flags().BoolVar(&flagStart, "start", false, "start execution immediately instead of waiting for the controller")
	root.AddCommand(exec)

	attach := &cobra.Command{
		Use:   "attach",
		Short: "attach an interactive controller shell to a running engine",
		Args:  cobra.NoArgs,
		RunE:  runAttach,
	}
	attach.Flags().StringVar(&flagAddr, "addr", "", "engine control channel address")
	attach.Flags().IntVar(&flagAttempts, "attempts", 0, "connection attempts before giving up")
	root.AddCommand(attach)

	return root
}

func loadConfig() (*config.Config, error) {
	if flagConfig != "" {
		return config.LoadFromFile(flagConfig)
	}
	return config.Load()
}

func runExec(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flagListen != "" {
		cfg.Listen = flagListen
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagDepth > 0 {
		cfg.SerializeDepth = flagDepth
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	runtime := luart.New(luart.WithRuntimeLogger(log.Named("luart")))
	session := dbg.New(runtime, dbg.WithLogger(log.Named("dbg")))
	server := rpc.NewServer(session,
		rpc.WithServerLogger(log.Named("rpc")),
		rpc.WithSerializeDepth(cfg.SerializeDepth),
	)

	if err := server.Listen(cfg.Listen); err != nil {
		return err
	}
	defer server.Close()
	go func() {
		if err := server.Serve(); err != nil && err != rpc.ErrServerClosed {
			log.Error("control channel stopped", zap.Error(err))
		}
	}()

	if flagStart {
		session.Start()
	}
	return session.Run(args[0])
}

func runAttach(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	addr := cfg.Listen
	if flagAddr != "" {
		addr = flagAddr
	}
	attempts := cfg.ConnectAttempts
	if flagAttempts > 0 {
		attempts = flagAttempts
	}

	client := rpc.NewClient(addr, rpc.WithRetryDelay(cfg.ConnectDelay))
	if err := client.Connect(attempts); err != nil {
		return err
	}
	defer client.Close()

	fmt.Printf("connected to %s\n", addr)
	return cli.NewREPL(client, os.Stdout).Run()
}
