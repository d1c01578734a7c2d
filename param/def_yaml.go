// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package param

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/LugeBox/soulstruct/bnd"
	"github.com/LugeBox/soulstruct/bstruct"
)

// YAML schema files let users author defs for tables the bundled paramdef
// binders do not cover. The field shape mirrors the binary def records.
type yamlDefFile struct {
	Defs []yamlDef `yaml:"defs"`
}

type yamlDef struct {
	ParamType string      `yaml:"param_type"`
	Fields    []yamlField `yaml:"fields"`
}

type yamlField struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	Bits int    `yaml:"bits"`
	Size int    `yaml:"size"`
}

// LoadDefsYAML parses a YAML schema file into a DefBank for the given
// dialect. Defs loaded this way share the process-wide cache with binary
// defs.
func LoadDefsYAML(b []byte, dialect bnd.Dialect) (*DefBank, error) {
	var file yamlDefFile
	if err := yaml.Unmarshal(b, &file); err != nil {
		return nil, fmt.Errorf("parse schema yaml: %w", err)
	}
	if len(file.Defs) == 0 {
		return nil, fmt.Errorf("schema yaml declares no defs")
	}

	bank := &DefBank{Dialect: dialect, defs: make(map[string]*Def)}
	for _, yd := range file.Defs {
		if yd.ParamType == "" {
			return nil, fmt.Errorf("schema yaml: def without param_type")
		}
		layout := make(bstruct.Layout, 0, len(yd.Fields))
		for _, yf := range yd.Fields {
			field, err := fieldFromTypeCode(yf.Name, yf.Type, yf.Bits, yf.Size)
			if err != nil {
				return nil, fmt.Errorf("def %q field %q: %w", yd.ParamType, yf.Name, err)
			}
			layout = append(layout, field)
		}

		def := &Def{
			ParamType: yd.ParamType,
			Dialect:   dialect,
			Fields:    layout,
			RowSize:   layout.Size(),
		}
		defCache.Store(defKey(def.ParamType, dialect), def)
		bank.defs[def.ParamType] = def
	}
	return bank, nil
}
