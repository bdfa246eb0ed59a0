package main

import "github.com/warden-gate/wardengate/cmd/warden-gate/cmd"

func main() {
	cmd.Execute()
}
