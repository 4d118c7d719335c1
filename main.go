package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"iot-dashboard/command"
	"iot-dashboard/layout"
	"iot-dashboard/livedata"
	"iot-dashboard/logic"
	"iot-dashboard/metrics"
	"iot-dashboard/mqtt_broker"
	"iot-dashboard/webui"
	"iot-dashboard/widget"
)

func main() {
	configPath := flag.String("config", "config.json", "path to config.json")
	flag.Parse()

	cfg, err := logic.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("MAIN: Error loading config: %v\n", err)
	}
	if err := logic.SetupLogging(cfg.Log.Level, cfg.Log.MaxEntries); err != nil {
		log.Fatalf("MAIN: %v\n", err)
	}
	logger := logic.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialisiere die SQLite-Datenbank mit dem Gerätedaten-Cache
	db, err := logic.InitDB(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("MAIN: Error initializing database: %v", err)
	}
	defer db.Close()
	go pruneDeviceData(ctx, db, time.Duration(cfg.Database.CacheMinutes)*time.Minute, logger)

	// Start MQTT-Broker
	if cfg.Broker.Embedded {
		var tlsConfig *tls.Config
		if mqtt_broker.NeedsTLS(cfg.Broker) {
			cert, err := logic.LoadOrGenerateCert(cfg.Broker.TLSCert, cfg.Broker.TLSKey)
			if err != nil {
				logger.Fatalf("MQTT-Broker: Failed to load certificate: %v", err)
			}
			tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
		}
		if _, err := mqtt_broker.StartBroker(cfg.Broker, cfg.MQTT, tlsConfig); err != nil {
			logger.Fatal(err)
		}
		defer mqtt_broker.StopBroker()
		logger.Info("MAIN: Broker started.")
	}

	client := MQTT.NewClient(logic.NewMQTTClientOptions(cfg.MQTT))
	if err := logic.ConnectMQTT(client, 5); err != nil {
		// Ohne Broker laufen http-, coap- und device-Quellen weiter
		logger.Errorf("MAIN: %v", err)
	}
	defer client.Disconnect(250)

	recorder := metrics.NewRecorder(prometheus.DefaultRegisterer)

	live := livedata.NewManager(logger)
	live.SetObserver(recorder)
	mqttTransport := livedata.NewMQTTTransport(client, cfg.MQTT.QoS, logger)
	mirrorDone := make(chan struct{})
	if cfg.Database.MirrorMQTT {
		mirror := livedata.NewDeviceMirror(db, logger)
		mqttTransport.SetRecorder(mirror)
		go func() {
			mirror.Run(ctx)
			close(mirrorDone)
		}()
	} else {
		close(mirrorDone)
	}
	defer func() {
		stop()
		<-mirrorDone
	}()
	live.Register(widget.SourceMQTT, mqttTransport)
	live.Register(widget.SourceHTTP, livedata.NewHTTPTransport(&http.Client{Timeout: 10 * time.Second},
		cfg.Poll.BreakerFailures, time.Duration(cfg.Poll.BreakerOpenSeconds)*time.Second, logger))
	live.Register(widget.SourceCoAP, livedata.NewCoAPTransport(time.Duration(cfg.Poll.CoAPTimeoutMs)*time.Millisecond, logger))
	live.Register(widget.SourceDevice, livedata.NewDeviceTransport(db, logger))
	if cfg.InfluxDB.Enabled {
		backfiller := livedata.NewInfluxBackfiller(livedata.InfluxConfig{
			URL:      cfg.InfluxDB.URL,
			Token:    cfg.InfluxDB.Token,
			Org:      cfg.InfluxDB.Org,
			Bucket:   cfg.InfluxDB.Bucket,
			Lookback: time.Duration(cfg.InfluxDB.LookbackMinutes) * time.Minute,
		})
		defer backfiller.Close()
		live.SetBackfiller(backfiller)
		logger.Infof("MAIN: InfluxDB backfill enabled (%s)", cfg.InfluxDB.URL)
	}
	defer live.Close()
	metrics.RegisterSubscriptions(prometheus.DefaultRegisterer, live.Subscriptions)

	commands := command.NewChannel(client, command.Options{
		QoS:            cfg.MQTT.QoS,
		PublishTimeout: time.Duration(cfg.Command.PublishTimeoutMs) * time.Millisecond,
		MaxRetries:     cfg.Command.MaxRetries,
		Observer:       recorder,
		Log:            logger,
	})

	f, err := layout.Load(cfg.Layout.Path)
	if err != nil {
		logger.Fatalf("MAIN: %v", err)
	}
	store := layout.NewStore(f, logger)
	logger.Infof("MAIN: Layout %q loaded with %d widgets", f.Title, len(f.Widgets))

	engine := widget.NewEngine(
		widget.WithLiveSource(live),
		widget.WithCommandChannel(commands),
		widget.WithConfigChange(store.ApplyConfigChange),
		widget.WithObserver(recorder),
		widget.WithLogger(logger),
	)

	if interval := cfg.WatchInterval(); interval > 0 {
		go layout.Watch(ctx, cfg.Layout.Path, interval, func(next *layout.File) {
			for _, id := range store.Replace(next) {
				engine.Forget(id)
			}
		}, logger)
	}

	if cfg.WebUI.UseHTTPS {
		if _, err := logic.LoadOrGenerateCert(cfg.WebUI.TLSCert, cfg.WebUI.TLSKey); err != nil {
			logger.Fatalf("MAIN: Failed to prepare HTTPS certificate: %v", err)
		}
	}

	// Web-UI
	server := webui.NewServer(cfg.WebUI, engine, store, prometheus.DefaultGatherer, logger)
	logger.Info("MAIN: Web-UI-server started.")
	if err := server.Run(ctx); err != nil {
		logger.Errorf("MAIN: Web-UI stopped: %v", err)
		os.Exit(1)
	}
	logger.Info("MAIN: Shutdown complete.")
}

// pruneDeviceData löscht regelmäßig veraltete Einträge aus device_data.
func pruneDeviceData(ctx context.Context, db *sql.DB, maxAge time.Duration, log logrus.FieldLogger) {
	if maxAge <= 0 {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := logic.PruneDeviceData(db, maxAge, now)
			if err != nil {
				log.Warnf("MAIN: Error pruning device data: %v", err)
				continue
			}
			if n > 0 {
				log.Debugf("MAIN: Pruned %d device data rows", n)
			}
		}
	}
}
