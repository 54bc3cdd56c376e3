package main

import "github.com/mikann-OMO/bot/cmd"

func main() {
	cmd.Execute()
}
