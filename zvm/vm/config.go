package vm

import (
	"github.com/ethereum/go-ethereum/log"
)

type Config struct {
	// MaxCallDepth bounds recursion.
	MaxCallDepth int
	// MaxStackSize bounds the number of cells on the evaluation stack.
	MaxStackSize int
	Logger       log.Logger
}

func DefaultConfig() *Config {
	return &Config{
		MaxCallDepth: 1024,
		MaxStackSize: 1 << 20,
		Logger:       log.Root(),
	}
}

func (c *Config) logger() log.Logger {
	if c.Logger == nil {
		return log.Root()
	}
	return c.Logger
}
