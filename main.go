package main

import (
	"github.com/yanismiraoui/ai-agent-FarmBrief/cmd"
)

func main() {
	cmd.Execute()
}
