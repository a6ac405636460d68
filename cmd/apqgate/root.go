package main

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const envPrefix = "APQGATE"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "apqgate",
		Short: "GraphQL gateway with automatic persisted queries",
		Long: `
apqgate serves a GraphQL endpoint that understands the automatic persisted
query protocol. Clients may send a SHA-256 hash instead of the full query
text; the gateway keeps a hash to query cache and forwards resolved documents
to an upstream GraphQL server or to a built-in demo schema.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "",
		"Configuration file. Takes precedence over default values, but is "+
			"overridden by environment variables and flags.")
	root.AddCommand(newServeCmd(), newHashCmd(), newManifestCmd())
	return root
}

// newConf binds the command's flags to a viper instance that also reads
// APQGATE_* environment variables and the --config file.
func newConf(cmd *cobra.Command) (*viper.Viper, error) {
	conf := viper.New()
	conf.SetEnvPrefix(envPrefix)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	conf.AutomaticEnv()
	if err := conf.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	if err := conf.BindPFlags(cmd.InheritedFlags()); err != nil {
		return nil, err
	}
	if cfg := conf.GetString("config"); cfg != "" {
		conf.SetConfigFile(cfg)
		if err := conf.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "reading config")
		}
	}
	return conf, nil
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// addLoggingFlags registers the flags shared by commands that log.
func addLoggingFlags(fs *flag.FlagSet) {
	fs.Bool("log.dev", false, "Human readable debug logging")
}
