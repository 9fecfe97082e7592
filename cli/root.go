package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

const envPrefix = "SUBGRAPH_RUNTIME"

var rootCmd = &cobra.Command{
	Use:               "subgraph-runtime",
	Short:             "Index contract events into an entity store through subgraph mappings",
	SilenceUsage:      true,
	PersistentPreRunE: bindFlags,
}

// bindFlags lets every flag be set from the environment, --store-dsn being
// read from SUBGRAPH_RUNTIME_STORE_DSN.
func bindFlags(cmd *cobra.Command, _ []string) error {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	var err error
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		err = multierr.Append(err, viper.BindPFlag(flag.Name, flag))
	})
	if err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	return nil
}
