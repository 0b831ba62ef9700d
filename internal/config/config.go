// Package config loads settings.ini into an immutable Config value,
// constructed once by the orchestrator (spec.md §6, §9).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/ini.v1"

	"github.com/tommy-berg/SimplePLC/internal/plctypes"
)

type DeviceConfig struct {
	SlaveName            string
	DeviceIdentification string
	SlaveID              uint8
	RunIndicator         uint8
	RunScript            string
}

type ModbusServerConfig struct {
	Listen         string
	Port           uint16
	MaxConnections int
	MappingSize    int
}

type OPCUAConfig struct {
	Listen         string
	Port           uint16
	ServerName     string
	ApplicationURI string
}

// Config is the fully-resolved, immutable configuration value passed
// by reference to every component that needs it.
type Config struct {
	Device DeviceConfig
	Modbus ModbusServerConfig
	OPCUA  OPCUAConfig
	Tags   []plctypes.Tag

	// ScanInterval is the cadence at which the scan engine invokes
	// cycle(). spec.md §4.2 leaves this configurable; this
	// implementation's documented default is 1000ms.
	ScanInterval time.Duration
}

func defaults() Config {
	return Config{
		Device: DeviceConfig{
			SlaveName:            "SimplePLC",
			DeviceIdentification: "SimplePLC Soft-PLC Simulator",
			SlaveID:              1,
			RunIndicator:         1,
			RunScript:            "cycle.lua",
		},
		Modbus: ModbusServerConfig{
			Listen:         "0.0.0.0",
			Port:           502,
			MaxConnections: 5,
			MappingSize:    255,
		},
		OPCUA: OPCUAConfig{
			Listen:         "0.0.0.0",
			Port:           4840,
			ServerName:     "SimplePLC",
			ApplicationURI: "urn:simpleplc:server",
		},
		ScanInterval: time.Second,
	}
}

// defaultTags seeds the four built-in tags used when [Tags] is empty
// or absent, per spec.md §6.
func defaultTags() []plctypes.Tag {
	return []plctypes.Tag{
		{Name: "Conveyor1_Running", Address: 0, Kind: plctypes.Coil},
		{Name: "Sensor1_Active", Address: 0, Kind: plctypes.DiscreteInput},
		{Name: "Speed_Setpoint", Address: 0, Kind: plctypes.HoldingRegister},
		{Name: "Temperature1", Address: 0, Kind: plctypes.InputRegister},
	}
}

// Load reads path and returns the resolved configuration. A missing
// file is a configuration error, not fatal: it is logged and the
// built-in defaults are returned, matching main.cpp's "continue with
// default settings" behavior.
func Load(path string, logger *zap.Logger) (*Config, error) {
	cfg := defaults()

	if _, err := os.Stat(path); err != nil {
		logger.Info("configuration file not found, using default settings", zap.String("path", path))
		cfg.Tags = defaultTags()
		return &cfg, nil
	}
	logger.Info("using configuration from file", zap.String("path", path))

	f, err := ini.LoadSources(ini.LoadOptions{AllowBooleanKeys: true}, path)
	if err != nil {
		logger.Warn("failed to parse configuration file, using default settings", zap.Error(err))
		cfg.Tags = defaultTags()
		return &cfg, nil
	}

	if sec := f.Section("Device"); sec != nil {
		cfg.Device.SlaveName = sec.Key("slave_name").MustString(cfg.Device.SlaveName)
		cfg.Device.DeviceIdentification = sec.Key("device_identification").MustString(cfg.Device.DeviceIdentification)
		cfg.Device.SlaveID = parseU8(sec.Key("slave_id").String(), cfg.Device.SlaveID, logger, "slave_id")
		cfg.Device.RunIndicator = parseU8(sec.Key("run_indicator").String(), cfg.Device.RunIndicator, logger, "run_indicator")
		cfg.Device.RunScript = sec.Key("run_script").MustString(cfg.Device.RunScript)
	}

	if sec := f.Section("ModbusServer"); sec != nil {
		cfg.Modbus.Listen = sec.Key("listen").MustString(cfg.Modbus.Listen)
		cfg.Modbus.Port = parseU16(sec.Key("port").String(), cfg.Modbus.Port, logger, "port")
		cfg.Modbus.MaxConnections = parseInt(sec.Key("max_connections").String(), cfg.Modbus.MaxConnections, logger, "max_connections")
		cfg.Modbus.MappingSize = parseInt(sec.Key("mapping_size").String(), cfg.Modbus.MappingSize, logger, "mapping_size")
	}

	if sec := f.Section("OPCUA"); sec != nil {
		cfg.OPCUA.Listen = sec.Key("listen").MustString(cfg.OPCUA.Listen)
		cfg.OPCUA.Port = parseU16(sec.Key("port").String(), cfg.OPCUA.Port, logger, "port")
		cfg.OPCUA.ServerName = sec.Key("server_name").MustString(cfg.OPCUA.ServerName)
		cfg.OPCUA.ApplicationURI = sec.Key("application_uri").MustString(cfg.OPCUA.ApplicationURI)
	}

	cfg.Tags = parseTags(f, logger)
	if len(cfg.Tags) == 0 {
		cfg.Tags = defaultTags()
	}

	return &cfg, nil
}

// parseTags reads the [Tags] section's free-form "name,address,type"
// lines. Because these lines have no '=', ini.v1's AllowBooleanKeys
// loads each whole line as a key with an empty value — repurposed here
// to preserve the spec's positional format instead of forcing it into
// key=value pairs.
func parseTags(f *ini.File, logger *zap.Logger) []plctypes.Tag {
	sec, err := f.GetSection("Tags")
	if err != nil {
		return nil
	}

	var tags []plctypes.Tag
	for _, key := range sec.Keys() {
		line := key.Name()
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ",", 3)
		if len(parts) != 3 {
			logger.Warn("skipping malformed [Tags] line", zap.String("line", line))
			continue
		}
		name := strings.TrimSpace(parts[0])
		addr, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			logger.Warn("skipping [Tags] line with bad address", zap.String("line", line), zap.Error(err))
			continue
		}
		typeCode, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			logger.Warn("skipping [Tags] line with bad type", zap.String("line", line), zap.Error(err))
			continue
		}
		kind, ok := plctypes.ParseSpace(typeCode)
		if !ok {
			logger.Warn("skipping [Tags] line with unknown type code", zap.String("line", line))
			continue
		}
		tags = append(tags, plctypes.Tag{Name: name, Address: uint16(addr), Kind: kind})
	}
	return tags
}

func parseU8(raw string, fallback uint8, logger *zap.Logger, key string) uint8 {
	if raw == "" {
		return fallback
	}
	n, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		logger.Warn("invalid numeric config value, keeping default", zap.String("key", key), zap.String("value", raw))
		return fallback
	}
	return uint8(n)
}

func parseU16(raw string, fallback uint16, logger *zap.Logger, key string) uint16 {
	if raw == "" {
		return fallback
	}
	n, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		logger.Warn("invalid numeric config value, keeping default", zap.String("key", key), zap.String("value", raw))
		return fallback
	}
	return uint16(n)
}

func parseInt(raw string, fallback int, logger *zap.Logger, key string) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		logger.Warn("invalid numeric config value, keeping default", zap.String("key", key), zap.String("value", raw))
		return fallback
	}
	return n
}
