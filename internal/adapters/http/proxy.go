package http

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/melih/gamehost/internal/core/domain"
)

// GameLookup resolves a container name to its game.
type GameLookup interface {
	FindByContainerName(name string) (domain.Game, bool)
}

// ProxyHandler manages reverse proxying for subdomains.
type ProxyHandler struct {
	games  GameLookup
	domain string
}

// NewProxyHandler creates a new proxy handler for <container>.<domain> hosts.
func NewProxyHandler(games GameLookup, baseDomain string) *ProxyHandler {
	return &ProxyHandler{games: games, domain: strings.TrimPrefix(baseDomain, ".")}
}

// ProxyRequest intercepts requests to subdomains (e.g., snake.localhost)
// and routes them to the game's published host port.
func (h *ProxyHandler) ProxyRequest(c *fiber.Ctx) error {
	host := c.Hostname()
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}

	// 1. Extract Subdomain
	suffix := "." + h.domain
	if !strings.HasSuffix(host, suffix) {
		return c.Next()
	}
	subdomain := strings.TrimSuffix(host, suffix)
	if subdomain == "" || subdomain == "www" || strings.Contains(subdomain, ".") {
		return c.Next()
	}

	// 2. Find Game by container name
	game, ok := h.games.FindByContainerName(subdomain)
	if !ok || game.Status != domain.StatusRunning {
		return c.Status(fiber.StatusNotFound).SendString(fmt.Sprintf("Game '%s' not found or not running", subdomain))
	}

	// 3. Proxy the Request
	remote, err := url.Parse(fmt.Sprintf("http://127.0.0.1:%d", game.Port))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Invalid target URL")
	}

	proxy := httputil.NewSingleHostReverseProxy(remote)

	// Rewrite Host so the game sees the address it is actually served on.
	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.Host = remote.Host
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = fmt.Fprintf(w, "Proxy Info: target=%s error=%v", remote.Host, err)
	}

	// Fiber <-> Net/HTTP Adaptor
	return adaptor.HTTPHandler(proxy)(c)
}
