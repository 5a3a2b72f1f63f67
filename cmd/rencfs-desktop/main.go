package main

import "github.com/radumarias/rencfs-desktop/cmd/rencfs-desktop/cmd"

func main() {
	cmd.Execute()
}
