package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lohmuller/even-g1-go-sdk/internal/config"
	"github.com/lohmuller/even-g1-go-sdk/internal/transport/usbbridge"
	"github.com/lohmuller/even-g1-go-sdk/pkg/protocol"
)

var (
	port       = flag.Int("port", 8787, "REST API listen port")
	bridgeMode = flag.Bool("usb", false, "attach the bench USB bridge instead of running headless")
)

// server wraps a protocol.Engine behind a small REST surface for
// control and introspection, in the same style as the teacher's
// Orchestrator + gin router in cmd/driver/hasher-host.
type server struct {
	engine *protocol.Engine
}

func main() {
	flag.Parse()

	cfg, err := config.LoadEngineConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	engine := protocol.NewEngine(cfg.EngineOptions())
	srv := &server{engine: engine}

	if *bridgeMode {
		left := usbbridge.New(cfg.USBVendorID, cfg.USBProductID)
		right := usbbridge.New(cfg.USBVendorID, cfg.USBProductID)
		engine.AttachTransport(protocol.Left, left)
		engine.AttachTransport(protocol.Right, right)
		connected := true
		for _, side := range []protocol.Side{protocol.Left, protocol.Right} {
			if err := engine.Connect(side); err != nil {
				log.Printf("connect %s: %v", side, err)
				connected = false
			}
		}
		if connected {
			if err := engine.Initialize(protocol.Both, 5*time.Second); err != nil {
				log.Printf("initialize: %v", err)
			}
		}
	}

	runAPIServer(srv)
}

func runAPIServer(s *server) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api/v1")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/battery/:side", s.handleBattery)
		api.POST("/brightness", s.handleBrightness)
		api.POST("/dashboard-mode", s.handleDashboardMode)
		api.POST("/text", s.handleText)
	}

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: router,
	}

	go func() {
		log.Printf("glassesd listening on :%d", *port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("api server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down glassesd")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
}

func (s *server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"left":  s.engine.SideState(protocol.Left).String(),
		"right": s.engine.SideState(protocol.Right).String(),
		"pending": gin.H{
			"left":  s.engine.PendingCount(protocol.Left),
			"right": s.engine.PendingCount(protocol.Right),
		},
	})
}

func (s *server) handleBattery(c *gin.Context) {
	side, err := parseSide(c.Param("side"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := s.engine.BatteryQuery(side, protocol.PlatformAndroid)
	s.await(c, p, err)
}

func (s *server) handleBrightness(c *gin.Context) {
	var req struct {
		Side  string `json:"side"`
		Level int    `json:"level"`
		Auto  bool   `json:"auto"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := s.engine.SetBrightness(side, req.Level, req.Auto)
	s.await(c, p, err)
}

func (s *server) handleDashboardMode(c *gin.Context) {
	var req struct {
		Side    string `json:"side"`
		Mode    int    `json:"mode"`
		Submode int    `json:"submode"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := s.engine.SetDashboardMode(side, protocol.DashboardMode(req.Mode), protocol.DashboardSubmode(req.Submode))
	s.await(c, p, err)
}

func (s *server) handleText(c *gin.Context) {
	var req struct {
		Side string `json:"side"`
		Text string `json:"text"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := s.engine.DisplayText(req.Text)
	s.await(c, p, err)
}

// await submits a promise-returning call and blocks for its result,
// mapping protocol.Error kinds to HTTP status codes.
func (s *server) await(c *gin.Context, p *protocol.Promise, err error) {
	if err != nil {
		c.JSON(statusForErr(err), gin.H{"error": err.Error()})
		return
	}
	s.waitPromise(c, p)
}

func (s *server) waitPromise(c *gin.Context, p *protocol.Promise) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	val, err := p.Wait(ctx)
	if err != nil {
		c.JSON(statusForErr(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": val})
}

func statusForErr(err error) int {
	var perr *protocol.Error
	if errors.As(err, &perr) {
		switch perr.Kind {
		case protocol.KindInvalidArgument, protocol.KindPayloadTooLarge:
			return http.StatusBadRequest
		case protocol.KindSideNotReady, protocol.KindSideDisconnected:
			return http.StatusServiceUnavailable
		case protocol.KindBusy:
			return http.StatusConflict
		case protocol.KindTimeout:
			return http.StatusGatewayTimeout
		}
	}
	return http.StatusInternalServerError
}

func parseSide(s string) (protocol.Side, error) {
	switch s {
	case "left":
		return protocol.Left, nil
	case "right":
		return protocol.Right, nil
	case "both", "":
		return protocol.Both, nil
	default:
		return protocol.Side(0), fmt.Errorf("unknown side %q", s)
	}
}
