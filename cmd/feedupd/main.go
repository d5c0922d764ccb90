package main

import cmd "github.com/rohmanhakim/feed-updater/internal/cli"

func main() {
	cmd.Execute()
}
