// Package version centralizes build version metadata.
package version

// Version is overridden at build time via:
//
//	go build -ldflags "-X github.com/standardbeagle/codeindexd/internal/version.Version=v1.2.3"
var Version = "dev"
