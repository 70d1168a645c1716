package main

import "github.com/BioHazard786/huddle/internal/commands"

func main() {
	commands.Execute()
}
