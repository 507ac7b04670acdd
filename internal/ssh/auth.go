package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// agentSigners returns the keys held by the agent behind socket. The returned
// closer releases the agent connection once authentication is over.
func agentSigners(ctx context.Context, socket string) ([]ssh.Signer, func(), error) {
	if socket == "" {
		return nil, nil, errors.New("SSH_AUTH_SOCK not set")
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socket)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to SSH agent: %w", err)
	}

	signers, err := agent.NewClient(conn).Signers()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("getting signers from SSH agent: %w", err)
	}
	if len(signers) == 0 {
		_ = conn.Close()
		return nil, nil, errors.New("no keys available in SSH agent")
	}

	return signers, func() { _ = conn.Close() }, nil
}

// authMethods builds the authentication chain in the order: explicit key,
// password, agent, default keys. x/crypto attempts each method name at most
// once, so agent and default keys share one publickey method, and they are
// left out when an explicit key already claims it.
func authMethods(ctx context.Context, o *Options, log zerolog.Logger) ([]ssh.AuthMethod, func(), error) {
	cleanup := func() {}

	if o.KeyPath != "" {
		signer, err := LoadPrivateKey(o.KeyPath, o.Passphrase, o.Password)
		if err != nil {
			return nil, cleanup, err
		}
		methods := []ssh.AuthMethod{ssh.PublicKeys(signer)}
		if o.Password != "" {
			methods = append(methods, ssh.Password(o.Password))
		}
		return methods, cleanup, nil
	}

	var methods []ssh.AuthMethod
	if o.Password != "" {
		methods = append(methods, ssh.Password(o.Password))
	}

	socket := o.AgentSocket
	if socket == "" {
		socket = os.Getenv("SSH_AUTH_SOCK")
	}

	var signers []ssh.Signer
	fromAgent, closeAgent, err := agentSigners(ctx, socket)
	if err != nil {
		log.Debug().Err(err).Msg("ssh agent unavailable")
	} else {
		signers = append(signers, fromAgent...)
		cleanup = closeAgent
	}
	signers = append(signers, defaultKeySigners(o.KeyDir, o.Password, log)...)

	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}
	if len(methods) == 0 {
		return nil, cleanup, errors.New("no authentication methods available")
	}
	return methods, cleanup, nil
}
