package main

import "github.com/riskpilot-core/server/internal/commands"

func main() {
	commands.Execute()
}
