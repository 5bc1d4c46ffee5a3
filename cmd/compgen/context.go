package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aschepis/backscratcher/compgen/app"
	"github.com/aschepis/backscratcher/compgen/config"
	compgenlogger "github.com/aschepis/backscratcher/compgen/logger"
	"github.com/rs/zerolog"
)

type commandContext struct {
	configFlag  *string
	logFileFlag *string
	prettyFlag  *bool

	logger zerolog.Logger

	configOnce sync.Once
	config     *config.Config
	configErr  error

	appOnce sync.Once
	app     *app.App
	appErr  error
}

func newCommandContext(configFlag, logFileFlag *string, prettyFlag *bool) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		logFileFlag: logFileFlag,
		prettyFlag:  prettyFlag,
		logger:      zerolog.Nop(),
	}
}

func (c *commandContext) initLogger(stderr io.Writer) error {
	logFile := strings.TrimSpace(*c.logFileFlag)
	if logFile != "" && *c.prettyFlag {
		return fmt.Errorf("--logfile and --pretty are mutually exclusive")
	}
	logger, err := compgenlogger.InitWithOptions(logFile, *c.prettyFlag)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to initialize logger: %v\n", err)
		return err
	}
	c.logger = logger
	return nil
}

func (c *commandContext) configPath() string {
	if path := strings.TrimSpace(*c.configFlag); path != "" {
		return path
	}
	return config.DefaultPath()
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = fmt.Errorf("load configuration: %w", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureApp() (*app.App, error) {
	c.appOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.appErr = err
			return
		}
		a, err := app.New(cfg, c.logger, app.Options{})
		if err != nil {
			c.appErr = err
			return
		}
		c.app = a
	})
	return c.app, c.appErr
}

func (c *commandContext) close() error {
	if c.app == nil {
		return nil
	}
	return c.app.Close()
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
