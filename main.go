package main

import (
	"github.com/tedpearson/cerebro/internal/cerebro"
	"github.com/tedpearson/cerebro/internal/cli"
)

var (
	version   = "development"
	goVersion = "unknown"
	buildDate = "unknown"
)

func main() {
	cerebro.Version = version
	cli.Execute(version, goVersion, buildDate)
}
