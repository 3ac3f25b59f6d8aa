package main

import "biotutor-cli/cmd"

func main() {
	cmd.Execute()
}
