package main

import "github.com/ppiankov/sessionwatch/internal/cli"

func main() {
	cli.Execute()
}
