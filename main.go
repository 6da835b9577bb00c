package main

import "github.com/takefive/takefive/cmd"

func main() {
	cmd.Execute()
}
