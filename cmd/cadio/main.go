package main

import "github.com/onlinefem/onlinefem/internal/cli"

func main() {
	cli.Execute(cli.NewRootCommand())
}
