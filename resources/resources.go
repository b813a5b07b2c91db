// Package resources embeds the game data shipped with the binary.
package resources

import "embed"

//go:embed market/*.yaml
var MarketFiles embed.FS
