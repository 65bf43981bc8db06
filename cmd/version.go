package cmd

// Version is set at build time:
// go build -ldflags "-X github.com/knrv/webpilot/cmd.Version=1.2.0"
var Version = "0.1.0"
