package main

import "github.com/skyrelay/skyrelay/internal/cli"

func main() {
	cli.Execute()
}
