package config

import "flag"

// Flags holds the parsed CLI surface of §6. Mutating commands on the wire
// protocol never touch these; they are process-start-time only.
type Flags struct {
	ConfigPath    string
	Model         string
	I2CBus        int
	I2CAddr       int
	ButtonGPIOPin int
	UDSPath       string
	TCPAddr    string
	WSAddr     string
	HTTPAddr   string
	WebRoot    string
	LogLevel   string
}

// ParseFlags parses os.Args-style CLI flags. args excludes the program name.
func ParseFlags(fs *flag.FlagSet, args []string) (Flags, error) {
	var f Flags
	fs.StringVar(&f.ConfigPath, "config", "/etc/pisugar-server/config.json", "path to configuration file")
	fs.StringVar(&f.Model, "model", "", "board model (PiSugar2Std|PiSugar2Pro|PiSugar3)")
	fs.IntVar(&f.I2CBus, "i2c-bus", 0, "I2C bus number")
	fs.IntVar(&f.I2CAddr, "i2c-addr", 0, "I2C device address")
	fs.IntVar(&f.ButtonGPIOPin, "button-gpio", 0, "BCM GPIO number the tap button is wired to (0 = default pin 17)")
	fs.StringVar(&f.UDSPath, "uds", "/tmp/pisugar-server.sock", "unix domain socket path")
	fs.StringVar(&f.TCPAddr, "tcp", "0.0.0.0:8423", "TCP listen address")
	fs.StringVar(&f.WSAddr, "ws", "0.0.0.0:8422", "WebSocket listen address")
	fs.StringVar(&f.HTTPAddr, "http", "0.0.0.0:8421", "HTTP listen address")
	fs.StringVar(&f.WebRoot, "web", "", "static web UI root directory")
	fs.StringVar(&f.LogLevel, "log-level", "info", "log level (debug|info|warn|error)")

	if err := fs.Parse(args); err != nil {
		return f, err
	}
	return f, nil
}
