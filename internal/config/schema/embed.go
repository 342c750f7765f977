package schema

import _ "embed"

//go:embed release-packager.schema.json
var PackagingSchema []byte

//go:embed release-packager-config.schema.json
var ConfigSchema []byte
