package main

import (
	"os"

	"github.com/trickstertwo/xlog-amqp/cmd/xlog-amqp/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
