package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// itmdump config.toml key mapping to collector settings.
type fileConfig struct {
	Pipe       string `toml:"pipe"`
	Stimulus   int    `toml:"stimulus"`
	MQTTURL    string `toml:"mqtt_url"`
	ListenAddr string `toml:"listen_addr"`
}

// settings are the resolved collector options: defaults, then config file,
// then explicit flags.
type settings struct {
	pipe       string
	stimulus   int
	mqttURL    string
	listenAddr string
}

func loadFileConfig(path string, s *settings) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %v", path, err)
	}
	if meta.IsDefined("pipe") {
		s.pipe = raw.Pipe
	}
	if meta.IsDefined("stimulus") {
		s.stimulus = raw.Stimulus
	}
	if meta.IsDefined("mqtt_url") {
		s.mqttURL = raw.MQTTURL
	}
	if meta.IsDefined("listen_addr") {
		s.listenAddr = raw.ListenAddr
	}
	return nil
}

func (s *settings) validate() error {
	if s.pipe == "" {
		return fmt.Errorf("a named pipe path is required")
	}
	if s.stimulus < 0 || s.stimulus > 255 {
		return fmt.Errorf("stimulus port %d out of range (0-255)", s.stimulus)
	}
	return nil
}
