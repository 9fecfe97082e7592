package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func mustLookup(cmd *cobra.Command, flagName string) {
	if cmd.Flags().Lookup(flagName) == nil {
		panic(fmt.Sprintf("flags: couldn't find flag %q", flagName))
	}
}

func mustGetString(cmd *cobra.Command, flagName string) string {
	mustLookup(cmd, flagName)
	return viper.GetString(flagName)
}

func mustGetInt(cmd *cobra.Command, flagName string) int {
	mustLookup(cmd, flagName)
	return viper.GetInt(flagName)
}

func mustGetInt64(cmd *cobra.Command, flagName string) int64 {
	mustLookup(cmd, flagName)
	return viper.GetInt64(flagName)
}

func mustGetUint64(cmd *cobra.Command, flagName string) uint64 {
	mustLookup(cmd, flagName)
	return viper.GetUint64(flagName)
}

func mustGetDuration(cmd *cobra.Command, flagName string) time.Duration {
	mustLookup(cmd, flagName)
	return viper.GetDuration(flagName)
}

func mustGetStringSlice(cmd *cobra.Command, flagName string) []string {
	mustLookup(cmd, flagName)
	return viper.GetStringSlice(flagName)
}
