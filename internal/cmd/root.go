package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Xueheng-Li/cc-log-page/internal/config"
)

var (
	cfgFile   string
	outputFmt string
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "cclog",
	Short: "cclog — Claude Code session log browser",
	Long: `cclog watches the Claude Code projects directory, parses JSONL session
logs into structured records, and serves them through a searchable HTTP API
with live updates over WebSocket.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: $HOME/.cclog.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "text", "output format: text, json")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName(".cclog")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CCLOG")
	viper.AutomaticEnv()
	config.SetDefaults(viper.GetViper())
	_ = viper.ReadInConfig()
}
