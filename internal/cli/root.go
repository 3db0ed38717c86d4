package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd is the base command when called without subcommands
var rootCmd = &cobra.Command{
	Use:   "minerctl",
	Short: "Offline log template miner",
	Long: `minerctl discovers the templates behind log lines. Each line is matched
against the templates seen so far; lines that match nothing get a template
of their own, which may generalize similar templates already known.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: $HOME/.minerctl.yaml)")
	rootCmd.PersistentFlags().StringP("output", "o", "text", "output format: text, json")
	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName(".minerctl")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("MINERCTL")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}
