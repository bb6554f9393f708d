// Package config builds the watcher's immutable configuration: defaults, then
// an optional YAML file, then environment variables.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	api "github.com/etesami/roi-watcher/api"
	"github.com/etesami/roi-watcher/internal/drift"
	"github.com/etesami/roi-watcher/internal/governor"
	"github.com/etesami/roi-watcher/internal/tracker"
	utils "github.com/etesami/roi-watcher/pkg/utils"

	"gopkg.in/yaml.v3"
)

// Config is built once at startup and passed by pointer. Nothing mutates it
// afterwards.
type Config struct {
	WebcamIndex     int                `yaml:"webcamIndex"`
	VideoSource     string             `yaml:"videoSource"`
	MoveThresholdPx int                `yaml:"moveThresholdPx"`
	AlertCooldown   float64            `yaml:"alertCooldownSec"`
	SnapshotDir     string             `yaml:"snapshotDir"`
	ObjectLabel     string             `yaml:"objectLabel"`
	TrackerMode     tracker.Preference `yaml:"trackerMode"`
	NativeTracker   tracker.NativeKind `yaml:"nativeTracker"`
	Headless        bool               `yaml:"headless"`
	InitialROI      *api.BoundingBox   `yaml:"initialRoi"`
	ResetOnReselect bool               `yaml:"resetCooldownOnReselect"`
	ControlAddr     string             `yaml:"controlAddr"`
	FeedAddr        string             `yaml:"feedAddr"`
	WebhookURL      string             `yaml:"webhookUrl"`
	WebhookTimeout  float64            `yaml:"webhookTimeoutSec"`
	LogMode         string             `yaml:"logMode"`
	ProcTimeBuckets []float64          `yaml:"procTimeBuckets"`
	DriftBuckets    []float64          `yaml:"driftBuckets"`
}

// maxSeconds is the largest number of seconds a time.Duration can hold.
var maxSeconds = float64(math.MaxInt64 / int64(time.Second))

func Default() Config {
	return Config{
		WebcamIndex:     0,
		MoveThresholdPx: drift.DefaultThreshold,
		AlertCooldown:   governor.DefaultCooldown.Seconds(),
		SnapshotDir:     "snapshots",
		ObjectLabel:     "Object",
		TrackerMode:     tracker.PreferAuto,
		NativeTracker:   tracker.NativeCSRT,
		ControlAddr:     "127.0.0.1:8080",
		FeedAddr:        "127.0.0.1:50051",
		WebhookTimeout:  5,
		LogMode:         "development",
	}
}

func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.AlertCooldown * float64(time.Second))
}

func (c *Config) WebhookTimeoutDuration() time.Duration {
	return time.Duration(c.WebhookTimeout * float64(time.Second))
}

// Load reads CONFIG_FILE when set, applies the environment and validates.
func Load() (*Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (*Config, error) {
	c := Default()
	if path, ok := lookup("CONFIG_FILE"); ok && path != "" {
		if err := c.readFile(path); err != nil {
			return nil, err
		}
	}
	if err := c.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	var err error
	num := func(key string, dst *float64) {
		v, ok := lookup(key)
		if !ok || err != nil {
			return
		}
		f, perr := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if perr != nil {
			err = fmt.Errorf("%s: %q is not a number", key, v)
			return
		}
		*dst = f
	}
	flag := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || err != nil {
			return
		}
		b, perr := strconv.ParseBool(strings.TrimSpace(v))
		if perr != nil {
			err = fmt.Errorf("%s: %q is not a boolean", key, v)
			return
		}
		*dst = b
	}
	buckets := func(key string, dst *[]float64) {
		v, ok := lookup(key)
		if !ok || err != nil {
			return
		}
		b, perr := utils.ParseBuckets(v)
		if perr != nil {
			err = fmt.Errorf("%s: %w", key, perr)
			return
		}
		*dst = b
	}

	integer := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || err != nil {
			return
		}
		i, perr := strconv.Atoi(strings.TrimSpace(v))
		if perr != nil {
			err = fmt.Errorf("%s: %q is not an integer", key, v)
			return
		}
		*dst = i
	}

	integer("WEBCAM_INDEX", &c.WebcamIndex)
	str("VIDEO_SOURCE", &c.VideoSource)
	integer("MOVE_THRESHOLD_PX", &c.MoveThresholdPx)
	num("ALERT_COOLDOWN_SEC", &c.AlertCooldown)
	str("SNAPSHOT_DIR", &c.SnapshotDir)
	str("OBJECT_LABEL", &c.ObjectLabel)
	if v, ok := lookup("TRACKER_MODE"); ok {
		c.TrackerMode = tracker.Preference(strings.ToLower(strings.TrimSpace(v)))
	}
	if v, ok := lookup("NATIVE_TRACKER"); ok {
		c.NativeTracker = tracker.NativeKind(strings.ToLower(strings.TrimSpace(v)))
	}
	flag("HEADLESS", &c.Headless)
	flag("RESET_COOLDOWN_ON_RESELECT", &c.ResetOnReselect)
	str("CONTROL_ADDR", &c.ControlAddr)
	str("FEED_ADDR", &c.FeedAddr)
	str("WEBHOOK_URL", &c.WebhookURL)
	num("WEBHOOK_TIMEOUT_SEC", &c.WebhookTimeout)
	str("LOG_MODE", &c.LogMode)
	buckets("PROC_TIME_BUCKETS", &c.ProcTimeBuckets)
	buckets("DRIFT_BUCKETS", &c.DriftBuckets)
	if err != nil {
		return err
	}

	if v, ok := lookup("INITIAL_ROI"); ok {
		if strings.TrimSpace(v) == "" {
			c.InitialROI = nil
		} else {
			box, perr := api.ParseBox(v)
			if perr != nil {
				return fmt.Errorf("INITIAL_ROI: %w", perr)
			}
			c.InitialROI = &box
		}
	}
	return nil
}

// Validate names the offending key in its error.
func (c *Config) Validate() error {
	switch {
	case c.MoveThresholdPx <= 0:
		return fmt.Errorf("MOVE_THRESHOLD_PX must be > 0, got %d", c.MoveThresholdPx)
	case !seconds(c.AlertCooldown) || c.AlertCooldown < 0:
		return fmt.Errorf("ALERT_COOLDOWN_SEC must be between 0 and %.0f, got %v", maxSeconds, c.AlertCooldown)
	case c.WebcamIndex < 0:
		return fmt.Errorf("WEBCAM_INDEX must be >= 0, got %d", c.WebcamIndex)
	case c.SnapshotDir == "":
		return fmt.Errorf("SNAPSHOT_DIR must not be empty")
	case !seconds(c.WebhookTimeout) || c.WebhookTimeout <= 0:
		return fmt.Errorf("WEBHOOK_TIMEOUT_SEC must be > 0 and at most %.0f, got %v", maxSeconds, c.WebhookTimeout)
	}
	switch c.TrackerMode {
	case tracker.PreferAuto, tracker.PreferNative, tracker.PreferTemplate:
	default:
		return fmt.Errorf("TRACKER_MODE must be auto, native or template, got %q", c.TrackerMode)
	}
	switch c.NativeTracker {
	case tracker.NativeCSRT, tracker.NativeKCF:
	default:
		return fmt.Errorf("NATIVE_TRACKER must be csrt or kcf, got %q", c.NativeTracker)
	}
	switch c.LogMode {
	case "production", "development":
	default:
		return fmt.Errorf("LOG_MODE must be production or development, got %q", c.LogMode)
	}
	if c.InitialROI != nil && !c.InitialROI.Valid() {
		return fmt.Errorf("INITIAL_ROI must have a positive size, got %s", c.InitialROI)
	}
	return nil
}

// seconds reports whether v converts to a time.Duration without overflow.
func seconds(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v < maxSeconds
}
