package main

import (
	"flag"
	"fmt"
	"sync"

	"github.com/jedisct1/dlog"
	"github.com/kardianos/service"

	"github.com/ovenrack/ovenrack/ovenrack"
)

const (
	AppVersion            = "1.0.0"
	DefaultConfigFileName = "ovenrack.toml"
)

type App struct {
	wg     sync.WaitGroup
	quit   chan struct{}
	proxy  *ovenrack.Proxy
	client *ovenrack.DestClient
}

func main() {
	dlog.Init("ovenrack", dlog.SeverityNotice, "DAEMON")
	svcConfig := &service.Config{
		Name:        "ovenrack",
		DisplayName: "Ovenrack caching DNS proxy",
		Description: "Caching and prefetching DNS forwarder",
	}
	svcFlag := flag.String("service", "", fmt.Sprintf("Control the system service: %q", service.ControlAction))
	flags := registerFlags()
	flag.Parse()

	app := &App{}
	svc, err := service.New(app, svcConfig)
	if err != nil {
		svc = nil
		dlog.Debug(err)
	}
	if err := ConfigLoad(app, flags, svcFlag); err != nil {
		dlog.Fatal(err)
	}

	if len(*svcFlag) != 0 {
		if svc == nil {
			dlog.Fatal("Built-in service installation is not supported on this platform")
		}
		if err := service.Control(svc, *svcFlag); err != nil {
			dlog.Fatal(err)
		}
		if *svcFlag == "install" {
			dlog.Notice("Installed as a service. Use `-service start` to start")
		} else if *svcFlag == "uninstall" {
			dlog.Notice("Service uninstalled")
		} else if *svcFlag == "start" {
			dlog.Notice("Service started")
		} else if *svcFlag == "stop" {
			dlog.Notice("Service stopped")
		} else if *svcFlag == "restart" {
			dlog.Notice("Service restarted")
		}
		return
	}
	if svc != nil {
		if err := svc.Run(); err != nil {
			dlog.Fatal(err)
		}
	} else {
		app.Start(nil)
	}
}

func (app *App) Start(service service.Service) error {
	app.quit = make(chan struct{})
	app.wg.Add(1)
	if service != nil {
		go func() {
			app.AppMain()
		}()
	} else {
		app.AppMain()
	}
	return nil
}

func (app *App) AppMain() {
	defer app.wg.Done()
	if err := app.proxy.StartProxy(app.quit); err != nil {
		dlog.Fatal(err)
	}
	if err := PidFileCreate(); err != nil {
		dlog.Errorf("Unable to create the PID file: [%v]", err)
	}
	dlog.Noticef("Forwarding to [%v]", app.client)
	<-app.quit
	dlog.Notice("Quit signal received...")
}

func (app *App) Stop(service service.Service) error {
	if app.quit != nil {
		close(app.quit)
		app.wg.Wait()
	}
	if app.client != nil {
		queries, failures := app.client.Stats()
		dlog.Noticef("Upstream [%v]: %d queries, %d failures, RTT %v", app.client, queries, failures, app.client.RTT())
		app.client.Close()
	}
	if app.proxy != nil {
		dlog.Noticef("Cache hit ratio: %.2f", app.proxy.Cache().HitRatio())
	}
	if err := PidFileRemove(); err != nil {
		dlog.Debug(err)
	}
	dlog.Notice("Stopped.")
	return nil
}
