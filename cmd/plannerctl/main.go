package main

import (
	"os"
	_ "time/tzdata"

	"task-planner/internal/cli"
)

var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		os.Exit(1)
	}
}
