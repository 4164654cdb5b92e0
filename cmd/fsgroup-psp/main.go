package main

import "github.com/DrSkyle/fsgroup-psp/cmd/fsgroup-psp/commands"

func main() {
	commands.Execute()
}
