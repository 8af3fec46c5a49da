package main

import "github.com/smallbiznis/valora-verify/cmd/verifyctl/commands"

func main() {
	commands.Execute()
}
