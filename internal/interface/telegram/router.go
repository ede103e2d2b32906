package telegram

import (
	"strings"
	"sync"

	"github.com/care-attendance/attendance-bot/internal/infrastructure/external/telegram"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROUTES
// ══════════════════════════════════════════════════════════════════════════════

// Route names a destination handler. It doubles as the metrics label.
type Route string

const (
	RouteRegistration Route = "registration"
	RouteAttendance   Route = "attendance"
	RouteHelp         Route = "help"
	RouteUnknown      Route = "unknown"
	RouteIgnore       Route = "ignore"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER
// Maps commands and callback prefixes to routes.
// ══════════════════════════════════════════════════════════════════════════════

// Router routes Telegram updates to handlers.
type Router struct {
	mu               sync.RWMutex
	commands         map[string]Route
	callbackPrefixes map[string]Route
}

// NewRouter creates a router with the bot's commands registered.
func NewRouter() *Router {
	r := &Router{
		commands:         make(map[string]Route),
		callbackPrefixes: make(map[string]Route),
	}
	r.RegisterCommand("start", RouteRegistration)
	r.RegisterCommand("updateinfo", RouteRegistration)
	r.RegisterCommand("cancel", RouteRegistration)
	r.RegisterCommand("attendance", RouteAttendance)
	r.RegisterCommand("help", RouteHelp)
	r.RegisterCallbackPrefix("consent:", RouteRegistration)
	return r
}

// RegisterCommand registers a route for a command without the leading "/".
func (r *Router) RegisterCommand(command string, route Route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[strings.ToLower(command)] = route
}

// RegisterCallbackPrefix registers a route for callback data with the prefix.
func (r *Router) RegisterCallbackPrefix(prefix string, route Route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbackPrefixes[prefix] = route
}

// RouteMessage picks the route for a message. Free text goes to the
// registration flow, which answers it even when no flow is active.
func (r *Router) RouteMessage(msg *telegram.Message) Route {
	if msg == nil || strings.TrimSpace(msg.Text) == "" {
		return RouteIgnore
	}

	cmd := commandOf(msg)
	if cmd == "" {
		return RouteRegistration
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if route, ok := r.commands[cmd]; ok {
		return route
	}
	return RouteUnknown
}

// RouteCallback picks the route for callback data using the longest
// matching prefix.
func (r *Router) RouteCallback(data string) Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched string
	route := RouteIgnore
	for prefix, rt := range r.callbackPrefixes {
		if strings.HasPrefix(data, prefix) && len(prefix) > len(matched) {
			matched = prefix
			route = rt
		}
	}
	return route
}

// commandOf returns the lower-cased command of a message. Entities are
// preferred; a leading "/" is accepted when the client sent none.
func commandOf(msg *telegram.Message) string {
	if cmd := telegram.ExtractCommand(msg); cmd != "" {
		return strings.ToLower(cmd)
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd, _, _ := strings.Cut(text[1:], " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd)
}
