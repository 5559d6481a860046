// Package links parses and builds proxy deep links, both tg:// and https://t.me/ forms.
package links

import (
	"net/url"
	"strconv"
	"strings"
)

// MTProxy - tg://proxy?server=&port=&secret=
type MTProxy struct {
	Server string
	Port   int
	// Secret is kept as is, it is parsed by transport when connecting
	Secret string
}

// Socks5 - tg://socks?server=&port=&user=&pass=, empty user and pass are treated as absent
type Socks5 struct {
	Server string
	Port   int
	User   string
	Pass   string
}

const (
	internalScheme = "tg"
	externalHost   = "t.me"
)

// split - returns path of link and its query, for tg://proxy?... path is proxy,
// for https://t.me/proxy?... it is also proxy
func split(link string) (string, url.Values, bool) {
	if strings.HasPrefix(link, externalHost+"/") || strings.HasPrefix(link, "telegram.me/") {
		link = "https://" + link
	}

	u, err := url.Parse(link)
	if err != nil {
		return "", nil, false
	}

	var path string
	switch strings.ToLower(u.Scheme) {
	case internalScheme:
		// tg://proxy?... has path in host position
		path = u.Host
		if path == "" {
			path = strings.TrimPrefix(u.Opaque, "//")
		}
	case "http", "https":
		h := strings.ToLower(u.Host)
		if h != externalHost && h != "telegram.me" {
			return "", nil, false
		}
		path = strings.Trim(u.Path, "/")
	default:
		return "", nil, false
	}

	return path, u.Query(), true
}

func parsePort(s string) (int, bool) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 0 || port > 65535 {
		return 0, false
	}
	return port, true
}

// ParseMTProxy - returns false if link is not a valid mtproxy link,
// never returns partially filled value
func ParseMTProxy(link string) (MTProxy, bool) {
	path, q, ok := split(link)
	if !ok || path != "proxy" {
		return MTProxy{}, false
	}

	server, secret := q.Get("server"), q.Get("secret")
	if server == "" || secret == "" {
		return MTProxy{}, false
	}

	port, ok := parsePort(q.Get("port"))
	if !ok {
		return MTProxy{}, false
	}

	return MTProxy{Server: server, Port: port, Secret: secret}, true
}

// ParseSocks5 - returns false if link is not a valid socks link
func ParseSocks5(link string) (Socks5, bool) {
	path, q, ok := split(link)
	if !ok || path != "socks" {
		return Socks5{}, false
	}

	server := q.Get("server")
	if server == "" {
		return Socks5{}, false
	}

	port, ok := parsePort(q.Get("port"))
	if !ok {
		return Socks5{}, false
	}

	return Socks5{Server: server, Port: port, User: q.Get("user"), Pass: q.Get("pass")}, true
}

func build(external bool, path string, q url.Values) string {
	if external {
		return "https://" + externalHost + "/" + path + "?" + q.Encode()
	}
	return internalScheme + "://" + path + "?" + q.Encode()
}

// Link - builds tg:// link, or https://t.me/ link if external
func (p MTProxy) Link(external bool) string {
	q := url.Values{}
	q.Set("server", p.Server)
	q.Set("port", strconv.Itoa(p.Port))
	q.Set("secret", p.Secret)
	return build(external, "proxy", q)
}

func (p Socks5) Link(external bool) string {
	q := url.Values{}
	q.Set("server", p.Server)
	q.Set("port", strconv.Itoa(p.Port))
	if p.User != "" {
		q.Set("user", p.User)
	}
	if p.Pass != "" {
		q.Set("pass", p.Pass)
	}
	return build(external, "socks", q)
}
