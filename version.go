package flowengine

// Version is overridden at build time with -ldflags "-X github.com/botaas/flowengine.Version=...".
var Version = "0.1.0-dev"
