package router

import (
	"log/slog"
	"time"

	"github.com/m3rciful/sessionkeeper/core/logger"
	tg "github.com/m3rciful/sessionkeeper/core/telegram"
	"github.com/m3rciful/sessionkeeper/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRouteOptions configures how commands are wrapped and exposed.
type CommandRouteOptions struct {
	AdminID       int64
	OnAdminReject tele.HandlerFunc
}

// CommandRoutes prepares one route per command and alias, each logging a
// handler summary and enforcing admin-only access where declared.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}

	adminOnly := middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		AdminID:  opts.AdminID,
		OnReject: opts.OnAdminReject,
	})

	cmds := reg.Commands()
	routes := make([]tg.Route, 0, len(cmds))
	for name, def := range cmds {
		h := summarized(normalizeHandlerName(name), def.Handler)
		if def.AdminOnly {
			h = adminOnly(h)
		}
		routes = append(routes, tg.Route{Endpoint: name, Handler: h})
		for _, alias := range def.Aliases {
			if alias != "" && alias[0] != '/' {
				alias = "/" + alias
			}
			routes = append(routes, tg.Route{Endpoint: alias, Handler: h})
		}
	}

	logger.TWire.Info("tg.wire",
		slog.String("event", "complete"),
		slog.Int("commands", len(cmds)),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)
	return routes
}

func summarized(name string, h tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		return handleWithSummary(c, name, time.Now(), func() error { return h(c) })
	}
}
