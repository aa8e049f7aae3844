package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port             int      `yaml:"port"`
	Origin           string   `yaml:"origin"`
	Version          string   `yaml:"version"`
	CachePrefix      string   `yaml:"cachePrefix"`
	APIMarker        string   `yaml:"apiMarker"`
	Manifest         []string `yaml:"manifest"`
	ControlPrefix    string   `yaml:"controlPrefix"`
	WaitForPromotion bool     `yaml:"waitForPromotion"`
	DB               string   `yaml:"db"`
	LogFile          string   `yaml:"logFile"`
}

func getConfig(filename string) (Config, error) {
	var config Config
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = yaml.Unmarshal(configBytes, &config)
	return config, err
}
