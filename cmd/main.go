package main

import "github.com/dyike/chat2vis/internal/cli"

func main() {
	cli.Run()
}
