package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig carries the coordinator's runtime knobs.
type AppConfig struct {
	ListenAddr string

	ReconnectWindow time.Duration
	RoomTTL         time.Duration
	SweepInterval   time.Duration
	MaxRooms        int

	AllowedOrigins []string
	MsgTemplateDir string
}

// Load reads configuration from the environment, falling back to defaults
// that match the protocol constants: 30s reconnection window, 1h idle-room
// TTL swept every 5 minutes.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:      ":4000",
		ReconnectWindow: 30 * time.Second,
		RoomTTL:         time.Hour,
		SweepInterval:   5 * time.Minute,
		MaxRooms:        1000,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	} else if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		cfg.ListenAddr = ":" + v
	}

	if d, err := secondsEnv("RECONNECT_WINDOW_SEC"); err != nil {
		return nil, err
	} else if d > 0 {
		cfg.ReconnectWindow = d
	}
	if d, err := secondsEnv("ROOM_TTL_SEC"); err != nil {
		return nil, err
	} else if d > 0 {
		cfg.RoomTTL = d
	}
	if d, err := secondsEnv("SWEEP_INTERVAL_SEC"); err != nil {
		return nil, err
	} else if d > 0 {
		cfg.SweepInterval = d
	}

	if v := strings.TrimSpace(os.Getenv("MAX_ROOMS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, errors.New("MAX_ROOMS must be a positive integer")
		}
		cfg.MaxRooms = n
	}

	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, s)
			}
		}
	}

	cfg.MsgTemplateDir = strings.TrimSpace(os.Getenv("MSG_TEMPLATE_DIR"))

	if cfg.SweepInterval > cfg.RoomTTL {
		return nil, errors.New("SWEEP_INTERVAL_SEC must not exceed ROOM_TTL_SEC")
	}
	return cfg, nil
}

func secondsEnv(key string) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errors.New(key + " must be a positive integer of seconds")
	}
	return time.Duration(n) * time.Second, nil
}
