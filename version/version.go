package version

// Version is overridden at build time with -ldflags "-X filesentry/version.Version=...".
var Version = "dev"
