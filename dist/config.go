package dist

import "os"

// ModeFromEnv reads DIST_MODE ("none", "client", "server"), defaulting to
// ModeNone so a program that never sets it runs single-process with no
// Messenger at all.
func ModeFromEnv() Mode {
	switch os.Getenv("DIST_MODE") {
	case "client":
		return ModeClient
	case "server":
		return ModeServer
	default:
		return ModeNone
	}
}
