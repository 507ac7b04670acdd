package sshtest

import (
	"io"
	"net"
	"sync/atomic"
	"testing"

	txsocks5 "github.com/txthinking/socks5"
)

// Proxy is a no-auth SOCKS5 proxy that only supports CONNECT.
type Proxy struct {
	listener net.Listener
	count    atomic.Int64
}

// NewProxy starts a proxy and stops it when the test ends.
func NewProxy(t testing.TB) *Proxy {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	p := &Proxy{listener: ln}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go p.handle(conn)
		}
	}()
	return p
}

// Addr returns the proxy address.
func (p *Proxy) Addr() string {
	return p.listener.Addr().String()
}

// Connections returns the number of CONNECT requests relayed.
func (p *Proxy) Connections() int64 {
	return p.count.Load()
}

func (p *Proxy) handle(conn net.Conn) {
	defer conn.Close()

	if _, err := txsocks5.NewNegotiationRequestFrom(conn); err != nil {
		return
	}
	if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodNone).WriteTo(conn); err != nil {
		return
	}
	req, err := txsocks5.NewRequestFrom(conn)
	if err != nil {
		return
	}
	if req.Cmd != txsocks5.CmdConnect {
		_, _ = txsocks5.NewReply(txsocks5.RepCommandNotSupported, txsocks5.ATYPIPv4, []byte{0, 0, 0, 0}, []byte{0, 0}).WriteTo(conn)
		return
	}

	dst, err := net.Dial("tcp", req.Address())
	if err != nil {
		_, _ = txsocks5.NewReply(txsocks5.RepConnectionRefused, txsocks5.ATYPIPv4, []byte{0, 0, 0, 0}, []byte{0, 0}).WriteTo(conn)
		return
	}
	defer dst.Close()

	atyp, addr, port, err := txsocks5.ParseAddress(dst.LocalAddr().String())
	if err != nil {
		return
	}
	if _, err := txsocks5.NewReply(txsocks5.RepSuccess, atyp, addr, port).WriteTo(conn); err != nil {
		return
	}
	p.count.Add(1)

	done := make(chan struct{}, 2)
	go func() {
		_, _ = io.Copy(dst, conn)
		done <- struct{}{}
	}()
	go func() {
		_, _ = io.Copy(conn, dst)
		done <- struct{}{}
	}()
	<-done
}
