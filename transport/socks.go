package transport

import (
	"errors"
	"net"
	"strconv"

	"golang.org/x/net/proxy"
)

// SOCKS5 - dialer which connects through socks5 proxy, empty user means no auth
func SOCKS5(host string, port int, user, pass string) (proxy.ContextDialer, error) {
	var auth *proxy.Auth
	if user != "" {
		auth = &proxy.Auth{User: user, Password: pass}
	}

	d, err := proxy.SOCKS5("tcp", net.JoinHostPort(host, strconv.Itoa(port)), auth, proxy.Direct)
	if err != nil {
		return nil, err
	}

	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, errors.New("socks dialer does not support context")
	}
	return cd, nil
}
