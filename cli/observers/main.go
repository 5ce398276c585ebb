package main

import (
	"os"

	observerscmder "github.com/cfahlgren1/observers/cmd/observers"
)

func main() {
	cmd := observerscmder.NewObserversCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
