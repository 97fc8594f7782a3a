package router

import "github.com/gofiber/fiber/v2"

// ProxyConfig names the header a trusted reverse proxy uses for the client
// address. With an empty Header the socket peer is always the client.
type ProxyConfig struct {
	Header  string
	Trusted []string
}

// Apply enables fiber's trusted proxy check so that c.IP() reads Header only
// for requests arriving from a Trusted address or range.
func (p ProxyConfig) Apply(cfg *fiber.Config) {
	if p.Header == "" {
		return
	}
	cfg.ProxyHeader = p.Header
	cfg.EnableTrustedProxyCheck = true
	cfg.TrustedProxies = p.Trusted
	cfg.EnableIPValidation = true
}
