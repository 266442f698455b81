// Package configs holds files embedded into the autowriter binary.
//
//   - autowriter.example.yaml: written by `autowriter config init`
//   - taxonomy.yaml: controlled keyword vocabulary and synonyms
//   - vehicles.yaml: make and model catalog for metadata inference
//
// Edit the YAML files in this directory and rebuild to change them.
package configs

import _ "embed"

// ConfigTemplate is the commented project configuration template.
//
//go:embed autowriter.example.yaml
var ConfigTemplate string

// Taxonomy is the keyword vocabulary.
//
//go:embed taxonomy.yaml
var Taxonomy []byte

// Vehicles is the make and model catalog.
//
//go:embed vehicles.yaml
var Vehicles []byte
