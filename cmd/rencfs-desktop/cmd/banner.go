package cmd

import (
	"fmt"
)

const banner = `
   _ __ ___ _ __   ___ / _|___
  | '__/ _ \ '_ \ / __| |_/ __|
  | | |  __/ | | | (__|  _\__ \
  |_|  \___|_| |_|\___|_| |___/
`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Vault lifecycle daemon - Version %s\x1b[0m\n\n", Version)
}
