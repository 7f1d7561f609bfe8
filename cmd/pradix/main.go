// Command pradix sorts random keys with the lane-parallel radix sort,
// verifies the result, and compares its speed with a parallel merge sort
// on the host.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "pradix:", err)
		os.Exit(1)
	}
}
