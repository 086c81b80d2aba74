package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kingpin"
)

func main() {
	app := kingpin.New("tensorsink", "Stream test buffers into a tensor sink")
	opts := new(options).bind(app)
	kingpin.MustParse(app.Parse(os.Args[1:]))

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
