// Command opgate serves the operator auth endpoints and manages the
// operator store.
package main

import (
	"fmt"
	"os"

	"github.com/lborres/opgate/internal/config"
	"github.com/lborres/opgate/internal/logger"
	"github.com/spf13/cobra"
)

var version = "dev"

type loadFunc func() (*config.Config, error)

func main() {
	err := newRootCmd().Execute()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "opgate",
		Short:         "Operator authentication gateway",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "load environment from this .env file first")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(envFile)
		if err != nil {
			return nil, err
		}
		env := "dev"
		if cfg.IsProduction() {
			env = "prod"
		}
		logger.Init(logger.Config{
			Env:         env,
			Level:       cfg.LogLevel,
			ServiceName: "opgate",
			Version:     version,
		})
		return cfg, nil
	}

	root.AddCommand(
		newServeCmd(load),
		newMigrateCmd(load),
		newAuthorizeCmd(load),
	)
	return root
}
