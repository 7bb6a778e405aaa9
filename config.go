package main

import (
	"encoding/json"
	"os"

	pkgerrors "github.com/pkg/errors"
)

//FileConfig modules to initialize at startup, in the same shape as an
///initialize request body
type FileConfig struct {
	Modules map[string]ModuleSpec `json:"modules"`
}

func LoadFileConfig(path string) (*FileConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open config file %s", path)
	}
	defer f.Close()

	var config FileConfig
	if err := json.NewDecoder(f).Decode(&config); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to decode config file %s", path)
	}

	for name, spec := range config.Modules {
		if spec.Source == "" {
			return nil, pkgerrors.Errorf("module %s in %s has no source", name, path)
		}
	}

	return &config, nil
}
