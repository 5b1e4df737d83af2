package main

import (
	"DropFM/cmd"
)

func main() {
	cmd.Execute()
}
