// Command pisugar-server is the battery/RTC power-management daemon of
// spec §1: it owns the I²C link to the HAT, runs the policy engine, and
// serves the text-line command protocol over UDS, TCP, WebSocket and HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pisugar/pisugar-server/internal/bus"
	"github.com/pisugar/pisugar-server/internal/config"
	"github.com/pisugar/pisugar-server/internal/core"
	"github.com/pisugar/pisugar-server/internal/driver"
	"github.com/pisugar/pisugar-server/internal/logger"
	"github.com/pisugar/pisugar-server/internal/maintenance"
	"github.com/pisugar/pisugar-server/internal/model"
	"github.com/pisugar/pisugar-server/internal/policy"
	"github.com/pisugar/pisugar-server/internal/protocol"
	"github.com/pisugar/pisugar-server/internal/store"
	"github.com/pisugar/pisugar-server/internal/tap"
	"github.com/pisugar/pisugar-server/internal/transport/auth"
	"github.com/pisugar/pisugar-server/internal/transport/httpapi"
	"github.com/pisugar/pisugar-server/internal/transport/tcp"
	"github.com/pisugar/pisugar-server/internal/transport/uds"
	"github.com/pisugar/pisugar-server/internal/transport/ws"
	"go.uber.org/zap"
)

// Exit codes per spec §6.
const (
	exitOK            = 0
	exitConfigError   = 1
	exitDeviceError   = 2
	exitBindFailure   = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	flags, err := config.ParseFlags(flag.NewFlagSet("pisugar-server", flag.ContinueOnError), os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}

	if err := logger.Init(logger.Config{Level: flags.LogLevel, Format: "console"}); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		return exitConfigError
	}
	log := logger.Get()
	defer logger.Sync()

	cfg, err := config.Load(flags.ConfigPath, config.Overrides{
		Model:         flags.Model,
		I2CBus:        flags.I2CBus,
		I2CAddr:       flags.I2CAddr,
		ButtonGPIOPin: flags.ButtonGPIOPin,
	}, log)
	if err != nil {
		log.Error("failed to load configuration", zap.Error(err))
		return exitConfigError
	}

	dev, busCloser, err := driver.Open(cfg, log)
	if err != nil {
		log.Error("failed to open device", zap.Error(err))
		return exitDeviceError
	}
	defer dev.Close()
	defer busCloser.Close()

	var st *store.Store
	eventBus := bus.New(func() model.BatterySnapshot {
		return st.Snapshot()
	})
	logger.SetBroadcaster(func(level, message, source string, fields map[string]interface{}) {
		eventBus.PublishLog(level, message, source, fields)
	})

	st = store.New(cfg, flags.ConfigPath, eventBus, log)

	tapDispatcher := &tap.Dispatcher{
		Shells: tap.Enables2Shell{
			Single: cfg.TapShell.Single,
			Double: cfg.TapShell.Double,
			Long:   cfg.TapShell.Long,
		},
		SoftPoweroff: cfg.SoftPoweroff,
	}

	c := core.New(st, dev, eventBus, tapDispatcher, log)

	classifier := tap.New(tap.Enables{
		Single: cfg.TapEnable.Single,
		Double: cfg.TapEnable.Double,
		Long:   cfg.TapEnable.Long,
	}, core.NewClassifierEmit(c))

	dispatcher := protocol.New(c, st, dev)
	issuer, err := auth.NewIssuer()
	if err != nil {
		log.Error("failed to initialize auth issuer", zap.Error(err))
		return exitConfigError
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller := core.NewPoller(c, classifier)
	go poller.Run(ctx)

	engine := policy.New(st, dev, log)
	go engine.Run(ctx)

	sched := maintenance.New(c, flags.ConfigPath, log)
	sched.Start()
	defer sched.Stop()

	udsListener, err := uds.Listen(flags.UDSPath)
	if err != nil {
		log.Error("failed to bind unix socket", zap.Error(err))
		return exitBindFailure
	}
	defer udsListener.Close()
	go udsListener.Serve(ctx, dispatcher, eventBus, log)

	tcpListener, err := tcp.Listen(flags.TCPAddr)
	if err != nil {
		log.Error("failed to bind tcp listener", zap.Error(err))
		return exitBindFailure
	}
	defer tcpListener.Close()
	go tcpListener.Serve(ctx, dispatcher, eventBus, log)

	wsServer, err := ws.Listen(flags.WSAddr)
	if err != nil {
		log.Error("failed to bind websocket listener", zap.Error(err))
		return exitBindFailure
	}
	wsServer.Dispatcher = dispatcher
	wsServer.Bus = eventBus
	wsServer.Log = log
	wsServer.AuthUser = cfg.AuthUser
	wsServer.Issuer = issuer
	defer wsServer.Close()
	go func() {
		if err := wsServer.Serve(ctx); err != nil {
			log.Warn("websocket listener stopped", zap.Error(err))
		}
	}()

	httpServer := httpapi.New(httpapi.Config{
		Addr:       flags.HTTPAddr,
		WebRoot:    flags.WebRoot,
		Dispatcher: dispatcher,
		Store:      st,
		Bus:        eventBus,
		Issuer:     issuer,
		Log:        log,
	})
	defer httpServer.Close()
	httpErrCh := make(chan error, 1)
	go func() { httpErrCh <- httpServer.Serve(ctx) }()

	log.Info("pisugar-server started",
		zap.String("model", cfg.Model.String()),
		zap.String("uds", flags.UDSPath),
		zap.String("tcp", flags.TCPAddr),
		zap.String("ws", flags.WSAddr),
		zap.String("http", flags.HTTPAddr),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("shutdown signal received")
	case err := <-httpErrCh:
		if err != nil {
			log.Error("http listener failed", zap.Error(err))
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := st.Close(shutdownCtx); err != nil {
		log.Warn("failed to flush configuration on shutdown", zap.Error(err))
	}

	return exitOK
}
