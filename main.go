/*
gdemo draws one triangle through a Vulkan frame loop and flies a camera
around it with WASD.
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/gdemo/engine"
	"github.com/spaghettifunk/gdemo/engine/core"
	"github.com/spaghettifunk/gdemo/testbed"
)

func main() {
	configPath := flag.String("config", engine.DefaultConfigPath, "path to the TOML config file")
	flag.Parse()

	config, err := engine.LoadApplicationConfig(*configPath, testbed.DefaultConfig())
	if err != nil {
		core.LogFatal("%s", err)
	}

	tb := testbed.NewTestGame(config)

	e, err := engine.New(tb.Game, *configPath)
	if err != nil {
		core.LogFatal("%s", err)
	}

	if err := e.Initialize(); err != nil {
		_ = e.Shutdown()
		core.LogFatal("%s", err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	// the loop owns the GPU, so the signal only asks it to stop
	go func() {
		sig := <-sigCh
		core.LogInfo("Received %s, stopping.", sig)
		e.Stop()
	}()

	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError("Shutdown: %s", err)
	}
	if runErr != nil {
		core.LogFatal("%s", runErr)
	}
}
