// Command streamd runs the video-streaming server: an epoll-backed
// reactor, a bounded worker pool, and the session/user/history/video
// stores behind it. CLI wiring follows kcptun's server/main.go shape:
// flat defaults, an optional JSON override file, then flags, with
// checkError as the single "log and exit" path for startup failures.
package main

import (
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	"github.com/streamd/streamd/internal/config"
	"github.com/streamd/streamd/internal/historystore"
	"github.com/streamd/streamd/internal/reactor"
	"github.com/streamd/streamd/internal/router"
	"github.com/streamd/streamd/internal/session"
	"github.com/streamd/streamd/internal/userstore"
	"github.com/streamd/streamd/internal/videoindex"
)

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	app := cli.NewApp()
	app.Name = "streamd"
	app.Usage = "single-host HTTP video streaming server"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config", Usage: "flat key=value config file"},
		cli.StringFlag{Name: "c", Usage: "JSON config file, overrides --config and defaults"},
		cli.StringFlag{Name: "host", Usage: "listen host"},
		cli.IntFlag{Name: "port", Usage: "listen port"},
		cli.IntFlag{Name: "max-clients", Usage: "max concurrent clients"},
		cli.IntFlag{Name: "timeout-sec", Usage: "idle connection timeout in seconds"},
		cli.IntFlag{Name: "queue-capacity", Usage: "worker queue capacity"},
		cli.IntFlag{Name: "thread-num", Usage: "worker pool size"},
		cli.StringFlag{Name: "data-dir", Usage: "directory for user/history/video data files"},
		cli.StringFlag{Name: "static-dir", Usage: "directory static assets are served from"},
		cli.IntFlag{Name: "session-ttl-sec", Usage: "session sliding TTL in seconds"},
		cli.StringFlag{Name: "log", Usage: "log file path, default stderr"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		checkError(err)
	}
}

func run(c *cli.Context) error {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadFile(path, func(msg string) {
			color.Yellow("warning: %s", msg)
		})
		checkError(err)
		cfg = loaded
	}
	if path := c.String("c"); path != "" {
		checkError(config.LoadJSON(&cfg, path))
	}

	applyFlagOverrides(&cfg, c)
	checkError(cfg.Validate())

	if cfg.Log != "" {
		f, err := os.OpenFile(cfg.Log, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
		checkError(err)
		defer f.Close()
		log.SetOutput(f)
	}

	checkError(os.MkdirAll(cfg.DataDir, 0o755))

	users, err := userstore.New(filepath.Join(cfg.DataDir, "users.json"))
	checkError(err)
	history, err := historystore.New(filepath.Join(cfg.DataDir, "history.json"))
	checkError(err)
	videos, err := videoindex.Load(filepath.Join(cfg.DataDir, "videos.json"), history)
	checkError(err)

	sessions := session.New(session.DefaultBuckets, time.Duration(cfg.SessionTTLSec)*time.Second)

	r := &router.Router{
		Sessions:      sessions,
		Auth:          users,
		History:       history,
		Videos:        videos,
		StaticDir:     cfg.StaticDir,
		SessionTTLSec: cfg.SessionTTLSec,
	}

	rt, err := reactor.New(reactor.Config{
		Host:          cfg.Host,
		Port:          cfg.Port,
		MaxClients:    cfg.MaxClients,
		TimeoutSec:    cfg.TimeoutSec,
		QueueCapacity: cfg.QueueCapacity,
		ThreadNum:     cfg.ThreadNum,
		SessionTTLSec: cfg.SessionTTLSec,
	}, r)
	checkError(err)

	log.Println("streamd version:", VERSION)
	log.Println("listening on:", rt.Addr())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Println("shutting down")
		rt.Stop()
	}()

	return rt.Run()
}

func applyFlagOverrides(cfg *config.Config, c *cli.Context) {
	if c.IsSet("host") {
		cfg.Host = c.String("host")
	}
	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	if c.IsSet("max-clients") {
		cfg.MaxClients = c.Int("max-clients")
	}
	if c.IsSet("timeout-sec") {
		cfg.TimeoutSec = c.Int("timeout-sec")
	}
	if c.IsSet("queue-capacity") {
		cfg.QueueCapacity = c.Int("queue-capacity")
	}
	if c.IsSet("thread-num") {
		cfg.ThreadNum = c.Int("thread-num")
	}
	if c.IsSet("data-dir") {
		cfg.DataDir = c.String("data-dir")
	}
	if c.IsSet("static-dir") {
		cfg.StaticDir = c.String("static-dir")
	}
	if c.IsSet("session-ttl-sec") {
		cfg.SessionTTLSec = c.Int("session-ttl-sec")
	}
	if c.IsSet("log") {
		cfg.Log = c.String("log")
	}
}

func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(1)
	}
}
