package config

import (
	"fmt"
	"io/ioutil"

	"gopkg.in/yaml.v2"
)

// Config holds the server settings read from the YAML config file.
type Config struct {
	// Host is the address the chat relay binds its UDP sockets to.
	Host string `yaml:"host"`

	// Port is the port the command/response server listens on.
	Port string `yaml:"port"`

	// ChatPortMin is the base UDP port for chat relays; player N uses
	// ChatPortMin+N.
	ChatPortMin int `yaml:"chat_port_min"`

	// MaxPlayers is the fixed player count for the match.
	MaxPlayers int `yaml:"max_players"`
}

// ParseConfig reads and validates the config file at the given path.
func ParseConfig(path string) *Config {
	configFile, err := ioutil.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("Unable to read config from '%s': %s", path, err.Error()))
	}

	var config Config
	err = yaml.Unmarshal(configFile, &config)
	if err != nil {
		panic("Unable to parse yaml config")
	}

	if config.Port == "" {
		panic("Config must set a server port")
	}
	if config.MaxPlayers < 2 {
		panic("Config must set max_players to at least 2")
	}
	if config.ChatPortMin <= 0 {
		panic("Config must set a positive chat_port_min")
	}
	return &config
}
