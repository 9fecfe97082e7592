package main

import (
	"github.com/streamingfast/subgraph-runtime/cli"
	"github.com/streamingfast/subgraph-runtime/erc20"
	"github.com/streamingfast/subgraph-runtime/mapping"
)

func main() {
	mapping.Register(erc20.ProgramName, erc20.New)

	cli.Main()
}
