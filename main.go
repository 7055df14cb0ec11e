package main

import "github.com/kozaktomas/face-access/cmd"

func main() {
	cmd.Execute()
}
