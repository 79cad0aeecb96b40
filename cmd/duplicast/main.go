package main

import "github.com/duplicast/duplicast/cmd/duplicast/commands"

func main() {
	commands.Execute()
}
