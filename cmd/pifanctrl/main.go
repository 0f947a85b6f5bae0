package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"

	"pifanctrl/config"
	"pifanctrl/control"
	"pifanctrl/curve"
	"pifanctrl/device"
	"pifanctrl/jsonrpc"
	"pifanctrl/log"
	"pifanctrl/mqtt"
	"pifanctrl/sensor"
	"pifanctrl/service"
	"pifanctrl/status"
	"pifanctrl/store"
	"pifanctrl/system"
	"pifanctrl/version"
	"pifanctrl/web"
)

const shutdownTimeout = 5 * time.Second

func main() {
	log.Infof("=============== pifanctrl %s (%s) start ===============", version.Version, version.GitHash)
	err := runDaemon()
	var sig run.SignalError
	if err != nil && !errors.As(err, &sig) {
		log.Errorf("%v", err)
		os.Exit(1)
	}
	log.Info("=============== pifanctrl stop ===============")
}

func runDaemon() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log.SetDebug(cfg.Debug)
	board := system.GetSystemInfo()
	log.Infof("board %s, revision %s, serial %s", board.Model, board.Revision, board.Serial)

	st := store.New(cfg.StoreCapacity)
	defer st.Close()

	calc := curve.NewCalculator(cfg.Curve)
	if err := calc.Err(); err != nil {
		log.Warnf("configured fan curve is unusable, the fan will run at full speed: %v", err)
	}
	sim := sensor.NewSimulated()
	if !math.IsNaN(cfg.SimulateTemperature) {
		if err := sim.Simulate(cfg.SimulateTemperature); err != nil {
			return err
		}
		log.Infof("starting with simulated temperature %.2f", cfg.SimulateTemperature)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hw, err := device.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open hardware: %w", err)
	}
	defer hw.Close()

	sensors := append([]sensor.TemperatureSensor{}, hw.Sensors...)

	var broker *mqtt.Client
	if cfg.MQTTBroker != "" {
		broker, err = mqtt.NewClient(mqtt.ClientConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
		})
		if err != nil {
			return err
		}
		defer broker.Close()
	}
	for _, sc := range cfg.Sensors {
		if sc.Type != config.SensorMQTT {
			continue
		}
		if broker == nil {
			return fmt.Errorf("%w: mqtt sensor configured without PIFAN_MQTT_BROKER", config.ErrInvalidConfig)
		}
		filter := sc.Path
		if filter == "" {
			filter = cfg.MQTTSensorTopic
		}
		remote := mqtt.NewSensor(filter, cfg.MQTTMaxAge)
		if err := remote.Subscribe(broker); err != nil {
			return err
		}
		sensors = append(sensors, remote)
	}
	sensors = append(sensors, sim)

	agg := sensor.NewAggregator(st, sensors...)
	duty := control.NewDutyCycle(hw.Actuator)
	provider := status.NewProvider(st, duty, cfg.MeasuredSource, hw.Rpm.Name())
	svc := service.New(st, calc, sim, duty, provider)

	hub := web.NewHub(st)
	svc.AddNotifier(hub)
	defer st.Subscribe(hub.OnReading)()

	api, err := jsonrpc.NewServer(cfg.APIAddr, jsonrpc.NewHandler(svc), true)
	if err != nil {
		return err
	}
	httpd, err := web.New(cfg.ListenAddr, svc, hub)
	if err != nil {
		return err
	}

	var g run.Group
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	for _, w := range []*control.Worker{
		control.NewTemperatureLoop(agg, cfg.ReadInterval),
		control.NewRpmLoop(hw.Rpm, st, cfg.RpmInterval),
		control.NewDutyCycleLoop(st, calc, duty, cfg.DutyInterval),
	} {
		wctx, wcancel := context.WithCancel(ctx)
		g.Add(func() error {
			return w.Run(wctx)
		}, func(error) {
			wcancel()
		})
	}

	g.Add(func() error {
		log.Infof("command API listening on %s", api.Addr())
		return api.ListenAndServe()
	}, func(error) {
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		if err := api.Shutdown(sctx); err != nil {
			log.Warnf("command API shutdown: %v", err)
		}
	})

	g.Add(httpd.ListenAndServe, func(error) {
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		if err := httpd.Shutdown(sctx); err != nil {
			log.Warnf("web shutdown: %v", err)
		}
	})

	if broker != nil {
		pub := mqtt.NewPublisher(broker, cfg.MQTTTopicPrefix, mqtt.DefaultQueueSize)
		defer st.Subscribe(pub.Enqueue)()
		pctx, pcancel := context.WithCancel(ctx)
		g.Add(func() error {
			return pub.Run(pctx)
		}, func(error) {
			pcancel()
		})
	}

	log.Infof("running with %d temperature sensors on %s hardware", len(sensors), hw.Mode)
	return g.Run()
}
