package cli

import (
	"github.com/streamingfast/logging"
	"go.uber.org/zap"
)

var zlog *zap.Logger

func init() {
	zlog, _ = logging.ApplicationLogger("subgraph-runtime", "github.com/streamingfast/subgraph-runtime/cli",
		logging.WithSwitcherServerAutoStart(),
	)
}
