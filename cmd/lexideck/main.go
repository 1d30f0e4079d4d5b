package main

import (
	"os"

	"github.com/conorfennell/lexideck/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
