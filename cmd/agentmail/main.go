package main

import "github.com/agusx1211/agentmail/internal/cli"

func main() {
	cli.Execute()
}
