package main

// Version is the current app version.
//
// Set at build time:
//
//	wails build -clean -ldflags "-X main.Version=v1.2.0"
//
// If not injected, it defaults to "dev".
var Version = "dev"
