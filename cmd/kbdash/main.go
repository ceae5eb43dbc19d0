package main

import "github.com/aibiliti/kbdash/cmd/kbdash/cmd"

func main() {
	cmd.Execute()
}
