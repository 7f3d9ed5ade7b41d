// Command therapyctl browses the therapy catalog and exports treatment plans from the terminal.
package main

import (
	"fmt"
	"os"
)

func main() {
	a := newApp()
	err := a.rootCmd().Execute()
	a.shutdown()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
