package main

import "github.com/mabhi256/dngc/cmd"

func main() {
	cmd.Execute()
}
