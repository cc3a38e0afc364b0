// Command badgelinkd runs the BadgeLink session engine as a
// standalone process: it wires the core session package to concrete,
// BadgerDB- and os-backed collaborators, and serves Prometheus metrics
// over HTTP. No serial/USB transport is wired in yet, so outbound
// frames are logged and dropped rather than delivered.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/badgelink/badgelink/cmd/badgelinkd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		log.WithError(err).Error("badgelinkd exited with error")
		os.Exit(1)
	}
}
