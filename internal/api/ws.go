package api

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"atracker/internal/activity"
)

const (
	wsWriteWait    = 10 * time.Second
	wsChangePoll   = 250 * time.Millisecond
	wsMaxReadBytes = 512
	wsMessageType  = "current"
)

// WSMessage is pushed to WebSocket clients.
type WSMessage struct {
	Type string `json:"type"`
	CurrentView
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     checkOrigin,
}

// checkOrigin accepts non-browser clients and pages served from a loopback
// host or from the API host itself.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Host == r.Host {
		return true
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// pushInterval is the configured push period, or the stored poll interval.
func (s *Server) pushInterval(ctx context.Context) time.Duration {
	if s.cfg.PushInterval > 0 {
		return s.cfg.PushInterval
	}
	kv, err := s.deps.Store.Settings(ctx)
	if err != nil {
		return activity.DefaultSettings().PollInterval
	}
	settings, err := activity.ParseSettings(kv, activity.DefaultSettings())
	if err != nil {
		return activity.DefaultSettings().PollInterval
	}
	return settings.PollInterval
}

// handleWS pushes the current segment every push interval and whenever it
// changes, at most PushRate messages per second.
func (s *Server) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithContext(c.Request.Context()).Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.deps.Metrics.WSClients(1)
	defer s.deps.Metrics.WSClients(-1)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	log := s.logger.WithContext(ctx)
	log.Debug("websocket client connected", "remote", c.Request.RemoteAddr)

	// Clients only send control frames; reading drives pong and close handling.
	conn.SetReadLimit(wsMaxReadBytes)
	go func() {
		select {
		case <-s.closing:
			cancel()
		case <-ctx.Done():
		}
	}()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	limiter := rate.NewLimiter(rate.Limit(s.cfg.PushRate), 1)
	watch := time.NewTicker(wsChangePoll)
	defer watch.Stop()

	for {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		version := s.deps.Current.Version()
		changed := s.changes()
		view, err := s.currentView(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Warn("websocket view failed", "error", err)
		}
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(WSMessage{Type: wsMessageType, CurrentView: view}); err != nil {
			log.Debug("websocket write failed", "error", err)
			return
		}

		if !s.waitForPush(ctx, watch, version, changed) {
			break
		}
	}

	deadline := time.Now().Add(time.Second)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	log.Debug("websocket client disconnected")
}

// waitForPush blocks until the next push is due: the interval elapsed, the
// segment moved past version, or changed fired. It returns false when ctx ends.
func (s *Server) waitForPush(ctx context.Context, watch *time.Ticker, version uint64, changed <-chan struct{}) bool {
	timer := time.NewTimer(s.pushInterval(ctx))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case <-changed:
			return true
		case <-watch.C:
			if s.deps.Current.Version() != version {
				return true
			}
		}
	}
}
