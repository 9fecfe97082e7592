package query

import (
	"github.com/streamingfast/logging"
	"go.uber.org/zap"
)

var zlog *zap.Logger

func init() {
	zlog, _ = logging.PackageLogger("query", "github.com/streamingfast/subgraph-runtime/query")
}
