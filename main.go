package main

import "github.com/theirongolddev/costroll/cmd"

func main() {
	cmd.Execute()
}
