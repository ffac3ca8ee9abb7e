package main

import (
	"fmt"
	"os"
)

/*
Exit codes:
0 - Run completed (per-image failures do not fail the job)
1 - Missing or empty required environment variable
2 - Failed to initialise AWS configuration or verify the caller identity
3 - Branch lock not acquired
4 - Failed to prepare the results table
5 - Failed to list the images directory
8 - Failed to execute command
*/

func main() {
	if len(os.Args) == 1 {
		os.Args = append([]string{os.Args[0]}, "default")
	}
	if err := rootCmd.Execute(); err != nil {
		reportErrorAndExit("", fmt.Sprintf("Error occured during command exec: %v", err), 8)
	}
}
