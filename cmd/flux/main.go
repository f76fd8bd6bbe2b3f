package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cenkalti/flux/engine"
	"github.com/cenkalti/flux/engine/anacrolixengine"
	"github.com/cenkalti/flux/internal/console"
	"github.com/cenkalti/flux/internal/jsonutil"
	"github.com/cenkalti/flux/internal/logger"
	"github.com/cenkalti/flux/internal/resumestore"
	"github.com/cenkalti/flux/internal/rpctypes"
	"github.com/cenkalti/flux/rpcclient"
	"github.com/cenkalti/flux/session"
	"github.com/cenkalti/log"
	"github.com/hokaccha/go-prettyjson"
	"github.com/mitchellh/go-homedir"
	"github.com/urfave/cli"
)

var (
	app = cli.NewApp()
	clt *rpcclient.Client
)

func main() {
	app.Version = session.Version
	app.Usage = "BitTorrent session daemon"
	app.EnableBashCompletion = true
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "debug",
			Usage: "enable debug log",
		},
	}
	app.Before = handleBeforeCommand
	app.Commands = []cli.Command{
		{
			Name:  "server",
			Usage: "run session server",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "config",
					Usage: "read config from `FILE`",
					Value: "~/.flux/config.yaml",
				},
			},
			Action: handleServer,
		},
		{
			Name:   "console",
			Usage:  "show interactive console",
			Flags:  clientFlags,
			Before: handleBeforeClient,
			After:  handleAfterClient,
			Action: handleConsole,
		},
		{
			Name:   "client",
			Usage:  "send rpc request to server",
			Flags:  clientFlags,
			Before: handleBeforeClient,
			After:  handleAfterClient,
			Subcommands: []cli.Command{
				{
					Name:   "version",
					Usage:  "server version",
					Action: handleVersion,
				},
				{
					Name:   "list",
					Usage:  "list torrents",
					Action: handleList,
				},
				{
					Name:  "add",
					Usage: "add torrent file or magnet link",
					Flags: []cli.Flag{
						cli.StringFlag{
							Name:     "torrent,t",
							Usage:    "file or magnet link",
							Required: true,
						},
						cli.StringFlag{
							Name:  "save-path",
							Usage: "directory to save files",
						},
						cli.StringFlag{
							Name: "category",
						},
						cli.StringSliceFlag{
							Name: "tag",
						},
						cli.BoolFlag{
							Name:  "paused",
							Usage: "add in paused state",
						},
					},
					Action: handleAdd,
				},
				{
					Name:  "remove",
					Usage: "remove torrent",
					Flags: []cli.Flag{
						idFlag,
						cli.BoolFlag{
							Name:  "delete-files",
							Usage: "also delete downloaded files",
						},
					},
					Action: handleRemove,
				},
				{
					Name:   "pause",
					Usage:  "pause torrent",
					Flags:  []cli.Flag{idFlag},
					Action: handlePause,
				},
				{
					Name:  "resume",
					Usage: "resume torrent",
					Flags: []cli.Flag{
						idFlag,
						cli.BoolFlag{
							Name:  "force",
							Usage: "bypass queue limits",
						},
					},
					Action: handleResume,
				},
				{
					Name:   "pause-all",
					Usage:  "pause all torrents",
					Action: handlePauseAll,
				},
				{
					Name:   "resume-all",
					Usage:  "resume all torrents",
					Action: handleResumeAll,
				},
				{
					Name:   "stats",
					Usage:  "get session stats",
					Action: handleStats,
				},
				{
					Name:   "detail",
					Usage:  "get torrent detail",
					Flags:  []cli.Flag{idFlag},
					Action: handleDetail,
				},
				{
					Name:  "limit",
					Usage: "set speed limits, session limits if id is not given",
					Flags: []cli.Flag{
						cli.StringFlag{
							Name: "id",
						},
						cli.Int64Flag{
							Name:  "download",
							Usage: "bytes per second, 0 for unlimited",
						},
						cli.Int64Flag{
							Name:  "upload",
							Usage: "bytes per second, 0 for unlimited",
						},
					},
					Action: handleLimit,
				},
				{
					Name:  "queue",
					Usage: "move torrent in queue",
					Flags: []cli.Flag{
						idFlag,
						cli.StringFlag{
							Name:     "direction",
							Usage:    "top, up, down or bottom",
							Required: true,
						},
					},
					Action: handleQueue,
				},
				{
					Name:   "recheck",
					Usage:  "verify downloaded data",
					Flags:  []cli.Flag{idFlag},
					Action: handleRecheck,
				},
				{
					Name:  "move",
					Usage: "move downloaded files to another directory",
					Flags: []cli.Flag{
						idFlag,
						cli.StringFlag{
							Name:     "path",
							Usage:    "destination directory",
							Required: true,
						},
					},
					Action: handleMove,
				},
				{
					Name:   "reannounce",
					Usage:  "announce to trackers now",
					Flags:  []cli.Flag{idFlag},
					Action: handleReannounce,
				},
				{
					Name:  "file-priority",
					Usage: "set priority of a file",
					Flags: []cli.Flag{
						idFlag,
						cli.IntFlag{
							Name:  "index",
							Usage: "file index",
						},
						cli.IntFlag{
							Name:  "priority",
							Usage: "0 (skip), 1 (low), 4 (normal) or 7 (high)",
							Value: engine.PriorityNormal,
						},
					},
					Action: handleFilePriority,
				},
				{
					Name:   "bans",
					Usage:  "list banned peers",
					Action: handleBans,
				},
				{
					Name:   "notifications",
					Usage:  "list recent notifications",
					Action: handleNotifications,
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var clientFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "url",
		Usage: "URL of RPC server",
		Value: session.DefaultConfig.RPCHost,
	},
	cli.IntFlag{
		Name:  "port",
		Usage: "port of RPC server",
		Value: session.DefaultConfig.RPCPort,
	},
}

var idFlag = cli.StringFlag{
	Name:     "id",
	Required: true,
}

func handleBeforeCommand(c *cli.Context) error {
	if c.GlobalBool("debug") {
		logger.SetLevel(log.DEBUG)
	}
	return nil
}

func handleServer(c *cli.Context) error {
	configPath, err := homedir.Expand(c.String("config"))
	if err != nil {
		return err
	}
	cfg, err := session.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if !c.GlobalBool("debug") {
		level, err := logger.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger.SetLevel(level)
	}
	w, err := session.New(*cfg, openEngine)
	var schemaErr *resumestore.SchemaError
	if errors.As(err, &schemaErr) {
		return fmt.Errorf("%s\nUpgrade flux or point \"database\" in %s to a different file", err, configPath)
	}
	if err != nil {
		return err
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-ch:
		logger.New("flux").Infof("received %s, stopping server", s)
	case <-w.Done():
	}
	return w.Close()
}

func openEngine(cfg session.Config) (engine.Engine, error) {
	e, err := anacrolixengine.New(anacrolixengine.Config{
		DataDir:       cfg.DataDir,
		ListenPort:    cfg.ListenPort,
		DownloadLimit: cfg.MaxDownloadSpeed,
		UploadLimit:   cfg.MaxUploadSpeed,
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func handleBeforeClient(c *cli.Context) error {
	clt = rpcclient.New(c.String("url"), c.Int("port"))
	return nil
}

func handleAfterClient(c *cli.Context) error {
	if clt == nil {
		return nil
	}
	return clt.Close()
}

func handleConsole(c *cli.Context) error {
	return console.New(clt).Run()
}

func handleVersion(c *cli.Context) error {
	v, err := clt.Version()
	if err != nil {
		return err
	}
	fmt.Println(v)
	return nil
}

func handleList(c *cli.Context) error {
	torrents, err := clt.ListTorrents()
	if err != nil {
		return err
	}
	for _, t := range torrents {
		b, err := jsonutil.MarshalCompactPretty(t)
		if err != nil {
			return err
		}
		_, _ = os.Stdout.Write(b)
		fmt.Println()
	}
	return nil
}

func handleAdd(c *cli.Context) error {
	opt := rpctypes.AddTorrentOptions{
		SavePath: c.String("save-path"),
		Category: c.String("category"),
		Tags:     c.StringSlice("tag"),
		Paused:   c.Bool("paused"),
	}
	arg := c.String("torrent")
	var id string
	if isURI(arg) {
		var err error
		id, err = clt.AddURI(arg, opt)
		if err != nil {
			return err
		}
	} else {
		f, err := os.Open(arg)
		if err != nil {
			return err
		}
		id, err = clt.AddTorrent(f, opt)
		_ = f.Close()
		if err != nil {
			return err
		}
	}
	fmt.Println(id)
	return nil
}

func isURI(arg string) bool {
	return strings.HasPrefix(arg, "magnet:")
}

func handleRemove(c *cli.Context) error {
	return clt.RemoveTorrent(c.String("id"), c.Bool("delete-files"))
}

func handlePause(c *cli.Context) error {
	return clt.PauseTorrent(c.String("id"))
}

func handleResume(c *cli.Context) error {
	return clt.ResumeTorrent(c.String("id"), c.Bool("force"))
}

func handlePauseAll(c *cli.Context) error {
	return clt.PauseAll()
}

func handleResumeAll(c *cli.Context) error {
	return clt.ResumeAll()
}

func handleStats(c *cli.Context) error {
	s, err := clt.GetSessionStats()
	if err != nil {
		return err
	}
	return printPretty(s)
}

func handleDetail(c *cli.Context) error {
	d, err := clt.GetDetail(c.String("id"))
	if err != nil {
		return err
	}
	return printPretty(d)
}

func handleLimit(c *cli.Context) error {
	return clt.SetSpeedLimit(c.String("id"), c.Int64("download"), c.Int64("upload"))
}

func handleQueue(c *cli.Context) error {
	return clt.MoveQueue(c.String("id"), c.String("direction"))
}

func handleRecheck(c *cli.Context) error {
	return clt.Recheck(c.String("id"))
}

func handleMove(c *cli.Context) error {
	path, err := homedir.Expand(c.String("path"))
	if err != nil {
		return err
	}
	return clt.MoveStorage(c.String("id"), path)
}

func handleReannounce(c *cli.Context) error {
	return clt.Reannounce(c.String("id"))
}

func handleFilePriority(c *cli.Context) error {
	return clt.SetFilePriority(c.String("id"), c.Int("index"), c.Int("priority"))
}

func handleBans(c *cli.Context) error {
	bans, err := clt.GetBanLog()
	if err != nil {
		return err
	}
	return printPretty(bans)
}

func handleNotifications(c *cli.Context) error {
	notifications, err := clt.GetNotifications()
	if err != nil {
		return err
	}
	return printPretty(notifications)
}

func printPretty(v interface{}) error {
	b, err := prettyjson.Marshal(v)
	if err != nil {
		return err
	}
	_, _ = os.Stdout.Write(b)
	fmt.Println()
	return nil
}
