package main

import (
	"fmt"
	"os"

	"github.com/zeu5/robot-goal-env/benchmarks"
	"github.com/zeu5/robot-goal-env/config"
)

// main entry point to all the experiments
func main() {
	if err := config.LoadEnv(".env", "../.env"); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	// rootCommand defines a command line argument parser (some arguments and a subcommand to run)
	rootCommand := benchmarks.GetRootCommand()
	if err := rootCommand.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
