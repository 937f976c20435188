//go:build !linux

package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Fprintln(os.Stderr, "linkpath: the engine's Link Registry, Default-Route Tracker, and local-address watcher are Linux-only (netlink-backed); build and run on Linux.")
	os.Exit(1)
}
