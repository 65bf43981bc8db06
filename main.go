package main

import (
	"github.com/knrv/webpilot/cmd"
)

func main() {
	cmd.Execute()
}
