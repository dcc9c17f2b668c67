package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/loykin/apifetch/cmd/apifetch/commands"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:           "apifetch",
	Short:         "Fetch a resource over HTTP(S) and write it to a local, S3 or WebHDFS path",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	v := viper.GetViper()

	// Environment variables support: APIFETCH_CONFIG, APIFETCH_FETCH_URL, ...
	v.SetEnvPrefix("APIFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	rootCmd.PersistentFlags().String("config", "", "path to a config yaml (default "+commands.DefaultConfigPath+")")
	_ = v.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.ValidateCmd)
	rootCmd.AddCommand(commands.HistoryCmd)
	rootCmd.AddCommand(commands.ContextCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		exitHandler.LogFatalError(err, "command execution failed")
	}
}
