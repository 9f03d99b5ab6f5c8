package main

import (
	"github.com/insoln/slack-mm2/commands"
)

func main() {
	commands.Execute()
}
