package main

import "github.com/keithhendry/dotty/cmd"

func main() {
	cmd.Execute()
}
