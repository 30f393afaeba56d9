package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. FACEGATE_RECOGNITION_THRESHOLD
const EnvPrefix = "FACEGATE"

// Config repräsentiert die Hauptkonfiguration der Anwendung
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	DB          DBConfig          `mapstructure:"db"`
	Model       ModelConfig       `mapstructure:"model"`
	Camera      CameraConfig      `mapstructure:"camera"`
	Recognition RecognitionConfig `mapstructure:"recognition"`
	Gallery     GalleryConfig     `mapstructure:"gallery"`
	Overlay     OverlayConfig     `mapstructure:"overlay"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
	Cleanup     CleanupConfig     `mapstructure:"cleanup"`
	I18n        I18nConfig        `mapstructure:"i18n"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// ServerConfig enthält Server-bezogene Einstellungen
type ServerConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	DataDir  string `mapstructure:"data_dir"`
	Timezone string `mapstructure:"timezone"`
	// SessionSecret signiert das Sprach-Cookie; leer erzeugt beim Start einen Zufallswert
	SessionSecret string `mapstructure:"session_secret"`
}

// LogConfig enthält Log-Einstellungen
type LogConfig struct {
	Level  string `mapstructure:"level"`
	File   string `mapstructure:"file"`
	Format string `mapstructure:"format"` // "text" oder "json"
}

// DBConfig enthält Datenbankeinstellungen
type DBConfig struct {
	File string `mapstructure:"file"`
}

// ModelConfig wählt den Gesichtserkennungsdienst
type ModelConfig struct {
	Provider    string            `mapstructure:"provider"` // "dlib" oder "insightface"
	Dlib        DlibConfig        `mapstructure:"dlib"`
	InsightFace InsightFaceConfig `mapstructure:"insightface"`
}

// DlibConfig enthält die Einstellungen für das lokale dlib-Modell
type DlibConfig struct {
	ModelDir string `mapstructure:"model_dir"` // enthält shape_predictor_5, dlib_face_recognition_resnet und mmod_human_face_detector
}

// InsightFaceConfig enthält InsightFace-Einstellungen
type InsightFaceConfig struct {
	Enabled            bool    `mapstructure:"enabled"`
	URL                string  `mapstructure:"url"`
	Timeout            int     `mapstructure:"timeout"` // Sekunden
	DetectionThreshold float64 `mapstructure:"detection_threshold"`
}

// CameraConfig enthält die Kameraeinstellungen
type CameraConfig struct {
	Device int `mapstructure:"device"`
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

// RecognitionConfig enthält die Einstellungen der Erkennungsschleife
type RecognitionConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	Threshold        float64       `mapstructure:"threshold"`
	MaxFacesPerFrame int           `mapstructure:"max_faces_per_frame"`
	ShowConfidence   bool          `mapstructure:"show_confidence"`
	Location         string        `mapstructure:"location"`
	EventCooldown    time.Duration `mapstructure:"event_cooldown"`
}

// GalleryConfig enthält die Einstellungen der Galerie
type GalleryConfig struct {
	Key       string `mapstructure:"key"`
	SeedDemo  bool   `mapstructure:"seed_demo"`
	DemoCount int    `mapstructure:"demo_count"`
}

// OverlayConfig enthält die Einstellungen für das Overlay-Bild
type OverlayConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Backend    string `mapstructure:"backend"` // "image" (reines Go) oder "opencv"
	BufferSize int    `mapstructure:"buffer_size"`
}

// MQTTConfig enthält die Konfiguration für den MQTT-Client
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`

	// Home Assistant MQTT Discovery
	HomeAssistant HomeAssistantConfig `mapstructure:"homeassistant"`
}

// HomeAssistantConfig enthält die Einstellungen für Home Assistant Discovery
type HomeAssistantConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	DiscoveryPrefix string `mapstructure:"discovery_prefix"`
}

// CleanupConfig enthält Bereinigungseinstellungen
type CleanupConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
}

// I18nConfig enthält die Spracheinstellungen
type I18nConfig struct {
	DefaultLanguage string `mapstructure:"default_language"`
}

// MetricsConfig enthält die Einstellungen für Prometheus
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Address gibt host:port des HTTP-Servers zurück
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load lädt die Konfiguration aus Datei, Umgebungsvariablen und Standardwerten
func Load(configPath string) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	// Sicherstellen, dass erforderliche Verzeichnisse existieren
	if err := ensureDirectories(cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return cfg, nil
}

// Watch beobachtet die Konfigurationsdatei und ruft onChange mit der neu
// geladenen Konfiguration auf. Ohne Datei passiert nichts.
func Watch(configPath string, onChange func(*Config)) error {
	if configPath == "" {
		return nil
	}
	if _, err := os.Stat(configPath); err != nil {
		return nil
	}
	v, err := newViper(configPath)
	if err != nil {
		return err
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			log.WithError(err).Warn("Ignoring invalid config change")
			return
		}
		log.WithField("file", e.Name).Info("Config file changed, applying runtime settings")
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Standardwerte festlegen
	setDefaults(v)

	// Konfigurationsdatei laden, wenn vorhanden
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	// Umgebungsvariablen überlagern die Konfiguration
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate prüft Werte, die nicht sinnvoll ersetzt werden können
func (c *Config) Validate() error {
	if c.Recognition.Interval <= 0 {
		return fmt.Errorf("recognition.interval must be positive, got %s", c.Recognition.Interval)
	}
	if c.Recognition.Threshold <= 0 {
		return fmt.Errorf("recognition.threshold must be positive, got %v", c.Recognition.Threshold)
	}
	if c.Recognition.MaxFacesPerFrame < 0 {
		return fmt.Errorf("recognition.max_faces_per_frame must not be negative")
	}
	switch c.Model.Provider {
	case "dlib", "insightface":
	default:
		return fmt.Errorf("unknown model.provider %q", c.Model.Provider)
	}
	switch c.Overlay.Backend {
	case "image", "opencv":
	default:
		return fmt.Errorf("unknown overlay.backend %q", c.Overlay.Backend)
	}
	return nil
}

// setDefaults legt Standardwerte für die Konfiguration fest
func setDefaults(v *viper.Viper) {
	// Server-Standardwerte
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.data_dir", "./data")
	v.SetDefault("server.timezone", "UTC")
	v.SetDefault("server.session_secret", "")

	// Log-Standardwerte
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "./data/logs/facegate.log")
	v.SetDefault("log.format", "text")

	// DB-Standardwerte
	v.SetDefault("db.file", "./data/facegate.db")

	// Modell-Standardwerte
	v.SetDefault("model.provider", "dlib")
	v.SetDefault("model.dlib.model_dir", "./models")
	v.SetDefault("model.insightface.enabled", false)
	v.SetDefault("model.insightface.url", "http://localhost:18081")
	v.SetDefault("model.insightface.timeout", 10)
	v.SetDefault("model.insightface.detection_threshold", 0.5)

	// Kamera-Standardwerte
	v.SetDefault("camera.device", 0)
	v.SetDefault("camera.width", 640)
	v.SetDefault("camera.height", 480)

	// Erkennungs-Standardwerte
	v.SetDefault("recognition.interval", "100ms")
	v.SetDefault("recognition.threshold", 0.6)
	v.SetDefault("recognition.max_faces_per_frame", 5)
	v.SetDefault("recognition.show_confidence", true)
	v.SetDefault("recognition.location", "Main Entrance")
	v.SetDefault("recognition.event_cooldown", "30s")

	// Galerie-Standardwerte
	v.SetDefault("gallery.key", "facerecog_users")
	v.SetDefault("gallery.seed_demo", false)
	v.SetDefault("gallery.demo_count", 50)

	// Overlay-Standardwerte
	v.SetDefault("overlay.enabled", true)
	v.SetDefault("overlay.backend", "image")
	v.SetDefault("overlay.buffer_size", 10)

	// MQTT-Standardwerte
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.client_id", "facegate")
	v.SetDefault("mqtt.topic", "facegate")
	v.SetDefault("mqtt.homeassistant.enabled", false)
	v.SetDefault("mqtt.homeassistant.discovery_prefix", "homeassistant")

	// Cleanup-Standardwerte
	v.SetDefault("cleanup.retention_days", 90)

	v.SetDefault("i18n.default_language", "en")
	v.SetDefault("metrics.enabled", true)
}

// ensureDirectories stellt sicher, dass alle erforderlichen Verzeichnisse existieren
func ensureDirectories(cfg *Config) error {
	// Daten-Basisverzeichnis
	if cfg.Server.DataDir != "" {
		if err := os.MkdirAll(cfg.Server.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	// Log-Verzeichnis
	if cfg.Log.File != "" {
		logDir := filepath.Dir(cfg.Log.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	// Datenbank-Verzeichnis (für SQLite)
	if cfg.DB.File != "" && cfg.DB.File != ":memory:" {
		dbDir := filepath.Dir(cfg.DB.File)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return nil
}
