// Package data embeds the versioned knowledge, intent and template files so
// the binary answers queries without any files on disk.
package data

import _ "embed"

//go:embed knowledge_base.json
var KnowledgeBase []byte

//go:embed intents.yaml
var Intents []byte

//go:embed templates.yaml
var Templates []byte
