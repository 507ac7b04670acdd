package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	txsocks5 "github.com/txthinking/socks5"
)

// proxyConfig is a parsed WithProxy value.
type proxyConfig struct {
	addr     string
	username string
	password string
}

func parseProxy(raw string) (*proxyConfig, error) {
	if !strings.Contains(raw, "://") {
		return &proxyConfig{addr: raw}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy %q: %w", raw, err)
	}
	if u.Scheme != "socks5" && u.Scheme != "socks5h" {
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	p := &proxyConfig{addr: u.Host}
	if u.User != nil {
		p.username = u.User.Username()
		p.password, _ = u.User.Password()
	}
	return p, nil
}

// dial opens the TCP connection to addr, directly or through the SOCKS5 proxy.
func dial(ctx context.Context, proxy, addr string) (net.Conn, error) {
	var d net.Dialer
	if proxy == "" {
		return d.DialContext(ctx, "tcp", addr)
	}

	p, err := parseProxy(proxy)
	if err != nil {
		return nil, err
	}
	conn, err := d.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return nil, fmt.Errorf("dialing proxy %s: %w", p.addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if err := socks5Dial(conn, p, addr); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("proxy %s: %w", p.addr, err)
	}
	_ = conn.SetDeadline(time.Time{})
	return conn, nil
}

// socks5Dial negotiates a CONNECT to address over an open proxy connection.
func socks5Dial(conn net.Conn, p *proxyConfig, address string) error {
	methods := []byte{txsocks5.MethodNone}
	if p.username != "" {
		methods = append(methods, txsocks5.MethodUsernamePassword)
	}
	if _, err := txsocks5.NewNegotiationRequest(methods).WriteTo(conn); err != nil {
		return fmt.Errorf("write negotiation: %w", err)
	}
	neg, err := txsocks5.NewNegotiationReplyFrom(conn)
	if err != nil {
		return fmt.Errorf("read negotiation: %w", err)
	}

	switch neg.Method {
	case txsocks5.MethodNone:
	case txsocks5.MethodUsernamePassword:
		if p.username == "" {
			return errors.New("server requires username/password")
		}
		req := txsocks5.NewUserPassNegotiationRequest([]byte(p.username), []byte(p.password))
		if _, err := req.WriteTo(conn); err != nil {
			return fmt.Errorf("write userpass: %w", err)
		}
		rep, err := txsocks5.NewUserPassNegotiationReplyFrom(conn)
		if err != nil {
			return fmt.Errorf("read userpass: %w", err)
		}
		if rep.Status != txsocks5.UserPassStatusSuccess {
			return errors.New("proxy authentication failed")
		}
	default:
		return fmt.Errorf("unsupported negotiation method: %d", neg.Method)
	}

	atyp, dstAddr, dstPort, err := txsocks5.ParseAddress(address)
	if err != nil {
		return fmt.Errorf("parse address: %w", err)
	}
	if atyp == txsocks5.ATYPDomain {
		dstAddr = dstAddr[1:]
	}
	if _, err := txsocks5.NewRequest(txsocks5.CmdConnect, atyp, dstAddr, dstPort).WriteTo(conn); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	rep, err := txsocks5.NewReplyFrom(conn)
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if rep.Rep != txsocks5.RepSuccess {
		return fmt.Errorf("connect to %s refused (reply %d)", address, rep.Rep)
	}
	return nil
}
