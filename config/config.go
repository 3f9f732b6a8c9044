// Package config loads node configuration from environment variables,
// with .env support for development. Every tunable lives on one Config
// struct so callers never touch os.Getenv themselves.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/remus-chat/remus-node/models"
)

// Config carries all configuration for one community node.
type Config struct {
	Server   ServerConfig
	Node     NodeConfig
	Database DatabaseConfig
	Upload   UploadConfig
	Media    MediaConfig
	Admin    AdminConfig
	Debug    bool
}

// ServerConfig holds the HTTP listener and CORS settings.
type ServerConfig struct {
	Host            string
	Port            int
	ClientOrigin    string // extra allowed origin besides the defaults
	AllowFileOrigin bool   // accept Origin: file:// (packaged desktop clients)
	AllowNullOrigin bool   // accept Origin: null
}

// NodeConfig identifies this node to the main backend.
type NodeConfig struct {
	Name           string
	PublicURL      string
	Region         string
	IconPath       string // local file served as the server icon
	MainBackendURL string // external identity authority, required
}

// DatabaseConfig holds the SQLite paths.
type DatabaseConfig struct {
	Path       string
	RuntimeDir string // backups and other node-local runtime files
}

// UploadConfig holds file upload settings.
type UploadConfig struct {
	Dir     string
	MaxSize int64 // bytes
}

// MediaConfig holds the voice engine's transport settings.
type MediaConfig struct {
	WorkerPath  string // media worker binary
	ListenIP    string
	AnnouncedIP string
	MinPort     int
	MaxPort     int
	ICEServers  []models.ICEServer // STUN/TURN entries handed to clients verbatim
}

// AdminConfig gates the loopback admin surface. An empty key disables it.
type AdminConfig struct {
	Key string
}

// Load reads a Config from the environment. A .env file is loaded first
// if present. Validation collects every problem before failing so a
// broken deployment surfaces all mistakes in one run.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := strconv.Atoi(getEnv("PORT", "3001"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	fileLimitMB, err := strconv.ParseInt(getEnv("REMUS_FILE_LIMIT_MB", "25"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid REMUS_FILE_LIMIT_MB: %w", err)
	}

	minPort, err := strconv.Atoi(getEnv("REMUS_MEDIA_MIN_PORT", "40000"))
	if err != nil {
		return nil, fmt.Errorf("invalid REMUS_MEDIA_MIN_PORT: %w", err)
	}

	maxPort, err := strconv.Atoi(getEnv("REMUS_MEDIA_MAX_PORT", "49999"))
	if err != nil {
		return nil, fmt.Errorf("invalid REMUS_MEDIA_MAX_PORT: %w", err)
	}

	iceServers, err := parseICEServers(getEnv("REMUS_ICE_SERVERS", "stun:stun.l.google.com:19302"))
	if err != nil {
		return nil, fmt.Errorf("invalid REMUS_ICE_SERVERS: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("HOST", "0.0.0.0"),
			Port:            port,
			ClientOrigin:    getEnv("REMUS_CLIENT_ORIGIN", ""),
			AllowFileOrigin: getEnvBool("REMUS_ALLOW_FILE_ORIGIN", false),
			AllowNullOrigin: getEnvBool("REMUS_ALLOW_NULL_ORIGIN", false),
		},
		Node: NodeConfig{
			Name:           getEnv("REMUS_SERVER_NAME", "Remus Community"),
			PublicURL:      getEnv("REMUS_PUBLIC_URL", ""),
			Region:         getEnv("REMUS_REGION", ""),
			IconPath:       getEnv("REMUS_SERVER_ICON", ""),
			MainBackendURL: strings.TrimRight(getEnv("REMUS_MAIN_BACKEND_URL", ""), "/"),
		},
		Database: DatabaseConfig{
			Path:       getEnv("REMUS_DB_PATH", "./data/remus.db"),
			RuntimeDir: getEnv("REMUS_RUNTIME_DIR", "./data"),
		},
		Upload: UploadConfig{
			Dir:     getEnv("REMUS_UPLOADS_DIR", "./data/uploads"),
			MaxSize: fileLimitMB * 1024 * 1024,
		},
		Media: MediaConfig{
			WorkerPath:  getEnv("REMUS_MEDIA_WORKER", "remus-media-worker"),
			ListenIP:    getEnv("REMUS_MEDIA_LISTEN_IP", "0.0.0.0"),
			AnnouncedIP: getEnv("REMUS_MEDIA_ANNOUNCED_IP", ""),
			MinPort:     minPort,
			MaxPort:     maxPort,
			ICEServers:  iceServers,
		},
		Admin: AdminConfig{
			Key: getEnv("REMUS_ADMIN_KEY", ""),
		},
		Debug: getEnvBool("DEBUG", false) || getEnv("NODE_ENV", "") == "development",
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field and joins all failures into one error.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Node.MainBackendURL == "" {
		errs = append(errs, errors.New("REMUS_MAIN_BACKEND_URL is required"))
	} else if !strings.HasPrefix(c.Node.MainBackendURL, "http://") && !strings.HasPrefix(c.Node.MainBackendURL, "https://") {
		errs = append(errs, fmt.Errorf("REMUS_MAIN_BACKEND_URL must be an http(s) URL, got %q", c.Node.MainBackendURL))
	}
	if c.Upload.MaxSize < 1 {
		errs = append(errs, errors.New("REMUS_FILE_LIMIT_MB must be positive"))
	}
	if c.Media.MinPort < 1024 || c.Media.MinPort > 65535 {
		errs = append(errs, fmt.Errorf("REMUS_MEDIA_MIN_PORT must be between 1024 and 65535, got %d", c.Media.MinPort))
	}
	if c.Media.MaxPort < 1024 || c.Media.MaxPort > 65535 {
		errs = append(errs, fmt.Errorf("REMUS_MEDIA_MAX_PORT must be between 1024 and 65535, got %d", c.Media.MaxPort))
	}
	if c.Media.MinPort >= c.Media.MaxPort {
		errs = append(errs, fmt.Errorf("REMUS_MEDIA_MIN_PORT (%d) must be below REMUS_MEDIA_MAX_PORT (%d)", c.Media.MinPort, c.Media.MaxPort))
	}
	if c.Node.PublicURL != "" && !strings.HasPrefix(c.Node.PublicURL, "http://") && !strings.HasPrefix(c.Node.PublicURL, "https://") {
		errs = append(errs, fmt.Errorf("REMUS_PUBLIC_URL must be an http(s) URL, got %q", c.Node.PublicURL))
	}
	return errors.Join(errs...)
}

// Addr returns the listen address, e.g. "0.0.0.0:3001".
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// getEnv reads an environment variable, falling back when unset.
func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

// getEnvBool treats "1", "true", "yes" (case-insensitive) as true.
func getEnvBool(key string, fallback bool) bool {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return fallback
}

// splitList splits a comma-separated value, dropping empty entries.
func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseICEServers accepts either a JSON array of ICE server objects
// (needed for TURN credentials) or a comma-separated list of bare
// STUN/TURN URLs.
func parseICEServers(val string) ([]models.ICEServer, error) {
	val = strings.TrimSpace(val)
	if strings.HasPrefix(val, "[") {
		var servers []models.ICEServer
		if err := json.Unmarshal([]byte(val), &servers); err != nil {
			return nil, err
		}
		for i, s := range servers {
			if len(s.URLs) == 0 {
				return nil, fmt.Errorf("entry %d has no urls", i)
			}
		}
		return servers, nil
	}
	var servers []models.ICEServer
	for _, u := range splitList(val) {
		servers = append(servers, models.ICEServer{URLs: []string{u}})
	}
	return servers, nil
}
