package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		if errors.Is(err, cli.ErrThreatDetected) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
