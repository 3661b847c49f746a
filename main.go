// Command dealerintel collects dealership staff intelligence.
package main

import "github.com/savvydealer-adam/dealership-intel/cmd"

func main() {
	cmd.Execute()
}
