package main

import (
	"os"

	"category-tree/cmd/treectl/cmd"
)

func main() {
	os.Exit(cmd.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
