package main

import "github.com/tcsync/tcetl/cmd"

func main() {
	cmd.Execute()
}
