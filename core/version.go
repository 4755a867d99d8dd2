package core

// Version is the application version, injected at build time:
//
//	go build -ldflags "-X github.com/sagars2004/Flowstate/core.Version=$(git describe --tags --always)" .
//
// Defaults to "dev" for local builds.
var Version = "dev"
