package cli

import (
	"fmt"
	"os"

	"github.com/svetzal/r64u-sub000/internal/config"
	"github.com/svetzal/r64u-sub000/internal/events"
	"github.com/svetzal/r64u-sub000/internal/localfs"
	"github.com/svetzal/r64u-sub000/internal/logging"
	"github.com/svetzal/r64u-sub000/internal/queue"
	"github.com/svetzal/r64u-sub000/internal/transport"
)

// session bundles everything a transfer command needs: configuration, the
// open FTP connection, the event bus, and the queue engine driving it.
type session struct {
	cfg    *config.Config
	bus    *events.EventBus
	log    *logging.Logger
	ftp    *transport.FTP
	engine *queue.Engine
}

// openSession connects to the device and starts a queue engine on the
// connection.
func openSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.DeviceHost == "" {
		return nil, fmt.Errorf("no device host configured; set R64U_HOST or pass --host")
	}
	ftp, err := transport.Dial(cfg.FTPAddr(), cfg.FTPUser, cfg.FTPPassword)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.FTPAddr(), err)
	}
	bus := events.NewEventBus(cfg.EventBufferSize)
	log := logging.NewLogger(os.Stderr, bus)
	engine := queue.New(queue.Config{
		OperationTimeout: cfg.OperationTimeout,
		AutoMerge:        cfg.AutoMerge || assumeYes,
	}, ftp, localfs.NewFS(cfg.IncludeHidden), bus, log)
	return &session{cfg: cfg, bus: bus, log: log, ftp: ftp, engine: engine}, nil
}

func (s *session) close() {
	s.engine.Close()
	_ = s.ftp.Close()
	s.bus.Close()
}

// openTransport connects to the device without starting an engine. Used by
// commands that only need one listing.
func openTransport() (*transport.FTP, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DeviceHost == "" {
		return nil, nil, fmt.Errorf("no device host configured; set R64U_HOST or pass --host")
	}
	ftp, err := transport.Dial(cfg.FTPAddr(), cfg.FTPUser, cfg.FTPPassword)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to %s: %w", cfg.FTPAddr(), err)
	}
	return ftp, cfg, nil
}
