package main

import (
	"fmt"
	"os"

	"github.com/highwayswap/highway/swapd"
)

func main() {
	err := swapd.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
