package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/compose-network/deploykit/configs"
	"github.com/compose-network/deploykit/internal/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const appName = "deploykit"

var (
	configFile string
	appLogger  = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:           appName,
	Short:         "Deploys and wires the protocol contracts on a network",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}

		if err := configs.MergeDefaults(viper.GetViper()); err != nil {
			return err
		}

		if configFile != "" {
			viper.SetConfigFile(configFile)
		} else {
			viper.SetConfigName("config")
			if execPath, err := os.Executable(); err == nil {
				viper.AddConfigPath(filepath.Dir(execPath))
			}
			viper.AddConfigPath(".")
			viper.AddConfigPath("./configs")
		}

		// the embedded defaults cover everything a config file can set
		configFileUsed := true
		if err := viper.MergeInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return errors.Join(err, errors.New("error reading config file"))
			}
			configFileUsed = false
		}

		if err := viper.BindEnv("network", "NETWORK"); err != nil {
			return err
		}

		if err := viper.Unmarshal(&configs.Values); err != nil {
			return errors.Join(err, errors.New("unable to decode application config"))
		}

		if err := configs.Values.Validate(); err != nil {
			return err
		}

		log, err := logger.Initialize(configs.Values.Log)
		if err != nil {
			return err
		}
		appLogger = log

		if configFileUsed {
			appLogger.With("config_file", viper.ConfigFileUsed()).Debug("config file loaded")
		} else {
			appLogger.Debug("no config file found, using embedded defaults")
		}
		appLogger.With("network", configs.Values.DefaultNetwork).Debug("configuration loaded")

		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: config.yaml next to the binary, in . or ./configs)")

	rootCmd.AddCommand(addressesCmd)
	rootCmd.AddCommand(idCmd)
	rootCmd.AddCommand(registryCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(safeCmd)
	rootCmd.AddCommand(forkCmd)
	rootCmd.AddCommand(unitsCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		appLogger.With("err", err.Error()).Debug("command failed")
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
