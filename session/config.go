package session

import (
	"errors"
	"os"
	"time"

	"github.com/cenkalti/flux/internal/bwschedule"
	"github.com/cenkalti/flux/internal/peerfilter"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v2"
)

// Action taken on a torrent when it finishes or reaches the ratio limit.
type Action string

// Actions.
const (
	ActionNothing Action = "nothing"
	ActionPause   Action = "pause"
	ActionRemove  Action = "remove"
)

// Config for Worker.
type Config struct {
	// Database is the path of the resume database file.
	Database string `yaml:"database"`
	// DataDir is the default save path for new torrents.
	DataDir string `yaml:"data_dir"`
	// LogLevel is one of debug, info, warning, error.
	LogLevel string `yaml:"log_level"`

	// Cadence of the worker timers.
	AlertInterval      time.Duration `yaml:"alert_interval"`
	StatsInterval      time.Duration `yaml:"stats_interval"`
	ResumeSaveInterval time.Duration `yaml:"resume_save_interval"`
	ScheduleInterval   time.Duration `yaml:"schedule_interval"`
	// SpeedHistoryWindow is the span of rate history kept per torrent.
	// The number of samples is SpeedHistoryWindow / StatsInterval.
	SpeedHistoryWindow time.Duration `yaml:"speed_history_window"`

	// CommandQueueSize is the capacity of the command channel.
	CommandQueueSize int `yaml:"command_queue_size"`
	// CommandBatch is the maximum number of commands applied in a single loop iteration.
	CommandBatch int `yaml:"command_batch"`
	// CommandTimeout is how long Submit blocks when the command channel is full.
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// DatabaseOpenTimeout is how long to wait for a database locked by another process.
	DatabaseOpenTimeout time.Duration `yaml:"database_open_timeout"`
	// EngineStartTimeout is how long to retry creating the engine.
	EngineStartTimeout time.Duration `yaml:"engine_start_timeout"`

	// Default session limits in bytes per second. Zero means unlimited.
	MaxDownloadSpeed int64 `yaml:"max_download_speed"`
	MaxUploadSpeed   int64 `yaml:"max_upload_speed"`

	// OnComplete is applied when a torrent finishes downloading.
	OnComplete Action `yaml:"on_complete"`
	// MaxRatio is the share ratio at which RatioAction is applied. Zero disables the limit.
	MaxRatio    float64 `yaml:"max_ratio"`
	RatioAction Action  `yaml:"ratio_action"`

	BandwidthSchedule bwschedule.Schedule `yaml:"bandwidth_schedule"`
	PeerFilter        peerfilter.Config   `yaml:"peer_filter"`

	// NotificationLogSize is the number of notifications kept for clients.
	NotificationLogSize int `yaml:"notification_log_size"`

	// ListenPort is the port the engine accepts peer connections on.
	ListenPort int `yaml:"listen_port"`
	// MaxOpenFiles raises the file descriptor limit of the process when non-zero.
	MaxOpenFiles uint64 `yaml:"max_open_files"`

	RPCEnabled bool   `yaml:"rpc_enabled"`
	RPCHost    string `yaml:"rpc_host"`
	RPCPort    int    `yaml:"rpc_port"`
	// RPCShutdownTimeout is the time allowed for in-flight RPC requests on close.
	RPCShutdownTimeout time.Duration `yaml:"rpc_shutdown_timeout"`
}

// DefaultConfig for Worker.
var DefaultConfig = Config{
	Database:            "~/.flux/resume.db",
	DataDir:             "~/flux-downloads",
	LogLevel:            "info",
	AlertInterval:       500 * time.Millisecond,
	StatsInterval:       time.Second,
	ResumeSaveInterval:  5 * time.Minute,
	ScheduleInterval:    time.Minute,
	SpeedHistoryWindow:  5 * time.Minute,
	CommandQueueSize:    256,
	CommandBatch:        64,
	CommandTimeout:      5 * time.Second,
	DatabaseOpenTimeout: 5 * time.Second,
	EngineStartTimeout:  30 * time.Second,
	OnComplete:          ActionNothing,
	RatioAction:         ActionPause,
	PeerFilter:          peerfilter.DefaultConfig,
	NotificationLogSize: 100,
	ListenPort:          6881,
	RPCEnabled:          true,
	RPCHost:             "127.0.0.1",
	RPCPort:             7246,
	RPCShutdownTimeout:  5 * time.Second,
}

// LoadConfig reads a YAML file over DefaultConfig. A missing file is not an error.
func LoadConfig(filename string) (*Config, error) {
	c := DefaultConfig
	b, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return &c, nil
	}
	if err != nil {
		return nil, err
	}
	if err = yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) expandPaths() error {
	var err error
	c.Database, err = homedir.Expand(c.Database)
	if err != nil {
		return err
	}
	c.DataDir, err = homedir.Expand(c.DataDir)
	return err
}

func (c *Config) validate() error {
	if c.AlertInterval <= 0 || c.StatsInterval <= 0 || c.ResumeSaveInterval <= 0 || c.ScheduleInterval <= 0 {
		return errors.New("timer intervals must be positive")
	}
	if c.CommandQueueSize <= 0 || c.CommandBatch <= 0 {
		return errors.New("command queue size and batch must be positive")
	}
	switch c.OnComplete {
	case "", ActionNothing, ActionPause, ActionRemove:
	default:
		return errors.New("invalid on_complete action: " + string(c.OnComplete))
	}
	switch c.RatioAction {
	case "", ActionNothing, ActionPause, ActionRemove:
	default:
		return errors.New("invalid ratio_action: " + string(c.RatioAction))
	}
	return c.BandwidthSchedule.Validate()
}
