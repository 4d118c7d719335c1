package webui

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"iot-dashboard/layout"
	"iot-dashboard/logic"
	"iot-dashboard/widget"
)

// Server liefert die gerenderten Widgets über REST und WebSocket aus.
type Server struct {
	cfg          logic.WebUIConfig
	engine       *widget.Engine
	store        *layout.Store
	gatherer     prometheus.Gatherer
	pushInterval time.Duration
	log          logrus.FieldLogger
	router       *gin.Engine
}

// NewServer baut den gin-Router mit allen Routen auf.
func NewServer(cfg logic.WebUIConfig, engine *widget.Engine, store *layout.Store, gatherer prometheus.Gatherer, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	pushInterval := time.Duration(cfg.PushIntervalMs) * time.Millisecond
	if pushInterval <= 0 {
		pushInterval = time.Second
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:          cfg,
		engine:       engine,
		store:        store,
		gatherer:     gatherer,
		pushInterval: pushInterval,
		log:          log,
		router:       r,
	}
	s.setupRoutes(r)
	return s
}

// Handler gibt den Router zurück (für Tests und eigene Server).
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run startet den HTTP- bzw. HTTPS-Server und blockiert bis ctx beendet wird.
func (s *Server) Run(ctx context.Context) error {
	port := s.cfg.HTTPPort
	if port == "" {
		port = "8080" // Fallback auf den Standardport
	}
	useTLS := s.cfg.UseHTTPS
	if useTLS {
		if s.cfg.TLSCert == "" || s.cfg.TLSKey == "" {
			return errors.New("WEBUI: TLS certificate and key must be specified for HTTPS")
		}
		if s.cfg.HTTPSPort != "" {
			port = s.cfg.HTTPSPort
		}
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if useTLS {
			s.log.Infof("WEBUI: Starting HTTPS server on port %s", port)
			err = srv.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			s.log.Infof("WEBUI: Starting HTTP server on port %s", port)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.log.Info("WEBUI: Shutting down")
	return srv.Shutdown(shutdownCtx)
}
