// Package main is the entry point for the matchsync CLI, which syncs a
// player's match history into a local store and backfills derived analytics.
package main

import "github.com/pable/go-match-sync/cmd"

func main() {
	cmd.Execute()
}
