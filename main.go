package main

import "github.com/habitkit/habits/cmd"

func main() {
	cmd.Execute()
}
