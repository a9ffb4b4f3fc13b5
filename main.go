package main

import "github.com/schedscope/schedscope/cmd"

func main() {
	cmd.Execute()
}
