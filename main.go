package main

import (
	"os"

	"github.com/EldroidTech/eldroid-ssg/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
