// Package configs embeds the annotated configuration template written by
// `shadowfinder config init`.
//
// Precedence when loading (see internal/config Load), lowest first:
//  1. Defaults (config.NewConfig)
//  2. User config (~/.config/shadowfinder/config.yaml)
//  3. Project config (.shadowfinder.yaml)
//  4. .env in the working directory
//  5. SHADOWFINDER_* environment variables
package configs

import _ "embed"

// UserConfigTemplate is the commented template for the user config file.
//
//go:embed config.example.yaml
var UserConfigTemplate string
