package main

import "github.com/forPelevin/kfcut/internal/cli"

func main() {
	cli.Main()
}
