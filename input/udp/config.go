package udp

import (
	"fmt"
	"net"
	"strconv"

	"github.com/c360/sensewatch/errors"
)

// Config is where one stream listens.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address returns host:port, defaulting the host to all interfaces.
func (c Config) Address() string {
	host := c.Host
	if host == "" {
		host = "0.0.0.0"
	}
	return net.JoinHostPort(host, strconv.Itoa(c.Port))
}

// Validate checks the port range. Port 0 asks the OS for a free port.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.WrapInvalid(fmt.Errorf("invalid port %d: %w", c.Port, errors.ErrInvalidConfig),
			"udp-listener", "Validate", "port validation")
	}
	return nil
}
