// Package main is the gtlabeler command itself.
package main

import (
	"log"
	"os"

	"github.com/schizzz8/lucrezio-semantic-perception/cli"
)

func main() {
	app := cli.NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
