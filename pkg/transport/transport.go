// Package transport builds a Docker Engine API client for a Host, over one
// of three transports: a local Unix socket, TCP with mutual TLS, or a Unix
// socket tunnelled through an SSH connection. All three return the same
// *client.Client so C4 and C9 never need to know which one backs a Host.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/docker/docker/client"
	"golang.org/x/crypto/ssh"

	"github.com/harborctl/controlplane/pkg/log"
	"github.com/harborctl/controlplane/pkg/types"
)

// Credentials carries the decrypted secret material transport.New needs. It
// is assembled by the caller from vault.OpenCredential results and never
// persisted.
type Credentials struct {
	TLSClientCert []byte
	TLSClientKey  []byte
	TLSCA         []byte

	SSHPrivateKey []byte
	SSHPassphrase []byte
	SSHPassword   string
	SSHUser       string
}

// Adapter wraps a *client.Client together with whatever long-lived resource
// (an SSH connection) backs it, so Close releases everything.
type Adapter struct {
	Client *client.Client
	sshConn *ssh.Client
}

// Close releases the adapter's underlying connection. Safe to call on an
// Adapter with no SSH connection.
func (a *Adapter) Close() error {
	if a.Client != nil {
		_ = a.Client.Close()
	}
	if a.sshConn != nil {
		return a.sshConn.Close()
	}
	return nil
}

// New builds an Adapter for host using creds, dispatching on host.Transport.
func New(host *types.Host, creds *Credentials, timeout time.Duration) (*Adapter, error) {
	switch host.Transport {
	case types.TransportLocal:
		return newLocal(host, timeout)
	case types.TransportTCP:
		return newTCP(host, creds, timeout)
	case types.TransportSSH:
		return newSSH(host, creds, timeout)
	default:
		return nil, fmt.Errorf("transport: unknown transport kind %q", host.Transport)
	}
}

func newLocal(host *types.Host, timeout time.Duration) (*Adapter, error) {
	addr := host.Address
	if addr == "" {
		addr = "unix:///var/run/docker.sock"
	}
	cli, err := client.NewClientWithOpts(
		client.WithHost(addr),
		client.WithAPIVersionNegotiation(),
		client.WithTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("transport: local client for %s: %w", host.Name, err)
	}
	return &Adapter{Client: cli}, nil
}

func newTCP(host *types.Host, creds *Credentials, timeout time.Duration) (*Adapter, error) {
	if creds == nil || len(creds.TLSClientCert) == 0 || len(creds.TLSClientKey) == 0 {
		return nil, fmt.Errorf("transport: tcp_tls host %s missing client certificate material", host.Name)
	}

	cert, err := tls.X509KeyPair(creds.TLSClientCert, creds.TLSClientKey)
	if err != nil {
		return nil, fmt.Errorf("transport: parse client keypair for %s: %w", host.Name, err)
	}

	tlsCfg := &tls.Config{
		Certificates:       []tls.Certificate{cert},
		InsecureSkipVerify: host.InsecureSkipTLS,
	}

	if len(creds.TLSCA) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(creds.TLSCA) {
			return nil, fmt.Errorf("transport: invalid CA certificate for %s", host.Name)
		}
		tlsCfg.RootCAs = pool
	}

	httpClient := &http.Client{
		Transport: &http.Transport{TLSClientConfig: tlsCfg},
		Timeout:   timeout,
	}

	cli, err := client.NewClientWithOpts(
		client.WithHTTPClient(httpClient),
		client.WithHost("tcp://"+host.Address),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("transport: tcp client for %s: %w", host.Name, err)
	}
	return &Adapter{Client: cli}, nil
}

func newSSH(host *types.Host, creds *Credentials, timeout time.Duration) (*Adapter, error) {
	if creds == nil {
		return nil, fmt.Errorf("transport: ssh host %s missing credentials", host.Name)
	}

	auth, err := sshAuthMethods(creds)
	if err != nil {
		return nil, fmt.Errorf("transport: ssh auth for %s: %w", host.Name, err)
	}

	user := creds.SSHUser
	if user == "" {
		user = "root"
	}

	sshCfg := &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // the remote host key is not verified or pinned
		Timeout:         timeout,
	}

	conn, err := ssh.Dial("tcp", host.Address, sshCfg)
	if err != nil {
		return nil, fmt.Errorf("transport: ssh dial %s: %w", host.Address, err)
	}
	go keepalive(conn, host.ID)

	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext: func(_ context.Context, _, _ string) (net.Conn, error) {
				return conn.Dial("unix", "/var/run/docker.sock")
			},
		},
		Timeout: timeout,
	}

	cli, err := client.NewClientWithOpts(
		client.WithHTTPClient(httpClient),
		client.WithHost("http://docker-over-ssh"),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: ssh-tunnelled client for %s: %w", host.Name, err)
	}
	return &Adapter{Client: cli, sshConn: conn}, nil
}

func sshAuthMethods(creds *Credentials) ([]ssh.AuthMethod, error) {
	if len(creds.SSHPrivateKey) > 0 {
		var signer ssh.Signer
		var err error
		if len(creds.SSHPassphrase) > 0 {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(creds.SSHPrivateKey, creds.SSHPassphrase)
		} else {
			signer, err = ssh.ParsePrivateKey(creds.SSHPrivateKey)
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	if creds.SSHPassword != "" {
		return []ssh.AuthMethod{ssh.Password(creds.SSHPassword)}, nil
	}
	return nil, fmt.Errorf("no ssh private key or password supplied")
}

// keepalive sends periodic keepalive@openssh.com requests so a dead tunnel
// is detected before the next connection-manager probe cycle runs, rather
// than silently timing out mid Docker API call.
func keepalive(conn *ssh.Client, hostID string) {
	logger := log.WithHostID(hostID)
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		if _, _, err := conn.SendRequest("keepalive@openssh.com", true, nil); err != nil {
			logger.Warn().Err(err).Msg("ssh tunnel keepalive failed, closing")
			conn.Close()
			return
		}
	}
}
