package main

import "github.com/kiesman99/layouttiler/cmd"

func main() {
	cmd.Execute()
}
