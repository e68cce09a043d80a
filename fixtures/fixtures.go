package fixtures

import (
	_ "embed"
)

//go:embed config/amp.yaml.template
var ConfigTemplate []byte
