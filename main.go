package main

import "github.com/crystaldolphin/outpipe/cmd"

func main() {
	cmd.Execute()
}
