package main

import (
	"github.com/esantos/moneta/internal/cli"
)

func main() {
	cli.Execute()
}
