package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/dorsadeh/wheel/internal/cli"
)

func main() {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	os.Exit(cli.Execute(log))
}
