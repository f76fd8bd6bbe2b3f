package session

// Version of the program. Set at build time with -ldflags "-X github.com/cenkalti/flux/session.Version=...".
var Version = "0.0.0"
