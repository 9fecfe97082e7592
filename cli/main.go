package cli

import (
	"os"

	"go.uber.org/zap"
)

func Main() {
	if err := rootCmd.Execute(); err != nil {
		zlog.Error("running cmd", zap.Error(err))
		os.Exit(1)
	}
}
