package main

import (
	"os"

	"github.com/deusflow/newsbot/internal/cli"
	"github.com/deusflow/newsbot/internal/logger"
)

func main() {
	logger.Init()
	os.Exit(cli.Execute())
}
