package main

import "wagate/cmd"

func main() {
	cmd.Execute()
}
