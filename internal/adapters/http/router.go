package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/opencrew/huddle/internal/adapters/signal"
	"github.com/opencrew/huddle/internal/app"
	"github.com/opencrew/huddle/internal/config"
	"github.com/opencrew/huddle/internal/core"
	"github.com/opencrew/huddle/internal/domain"
)

// IdentityMiddleware resolves the authenticated identity for the
// request. Real authentication lives outside this subsystem; here the
// identity comes from the platform session cookie, falling back to a
// generated token so a bare deployment still works.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		id, _ := s.Get("identity").(string)
		if id == "" {
			if q := c.Query("id"); q != "" {
				id = q
			} else {
				id = uuid.NewString()
			}
			s.Set("identity", id)
			_ = s.Save()
		}
		c.Set("identity", id)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, orch *app.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("HuddleSession", store))
	r.Use(IdentityMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	// POST /api/calls: out-of-band reachability check + relay trigger.
	// The caller still arms its own timeout: an unreachable callee is a
	// normal outcome, not an error.
	api.POST("/calls", func(c *gin.Context) {
		var req struct {
			Target string `json:"target" binding:"required"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid target"})
			return
		}
		from := domain.Identity(c.GetString("identity"))
		target := domain.Identity(req.Target)

		if !orch.Presence.Reachable(target) {
			c.JSON(http.StatusOK, gin.H{"reachable": false})
			return
		}
		fromName := string(from)
		if sess, ok := orch.Presence.Lookup(from); ok {
			fromName = sess.User().Name
		}
		orch.Relay.Forward(target, core.IncomingCall{
			Kind:     core.EvIncomingCall,
			From:     from,
			FromName: fromName,
		})
		c.JSON(http.StatusOK, gin.H{"reachable": true})
	})

	// GET /api/rooms lists live rooms and their sizes.
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": orch.Rooms.List()})
	})

	// GET /api/rooms/:id returns the roster snapshot.
	api.GET("/rooms/:id", func(c *gin.Context) {
		id := domain.RoomID(c.Param("id"))
		roster, ok := orch.Rooms.Snapshot(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"room":         roster.Room,
			"host":         roster.Host,
			"participants": roster.Participants,
		})
	})

	ctl := signal.NewController(orch)
	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("id", c.GetString("identity")).Msg("ws signal endpoint hit")
		ctl.HandleSignal(ctx, c)
	})

	return r
}
