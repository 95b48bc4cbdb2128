package version

// Version is overridden at build time with
// -ldflags "-X github.com/bnema/afk-farmer/internal/version.Version=...".
var Version = "dev"
