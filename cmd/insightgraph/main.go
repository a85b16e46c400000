package main

import (
	"os"
)

func main() {
	if err := rootCMD().Execute(); err != nil {
		os.Exit(1)
	}
}
