package main

import "github.com/mcoot/tebex-license-server/internal/cli"

func main() {
	cli.Execute()
}
