package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/ssh"

	"hostsentry/internal/inventory"
)

// DefaultProbeCommand is run on the remote host to obtain a snapshot.
// The agent binary doubles as the probe: it prints one snapshot as JSON
// to stdout and exits.
const DefaultProbeCommand = "hostsentry -probe"

// SSHSource samples remote hosts by executing a probe command over SSH.
// Each Sample call uses its own connection so one slow host never holds a
// handle another host is waiting on.
type SSHSource struct {
	hosts       map[string]inventory.Host
	probeCmd    string
	dialTimeout time.Duration
}

func NewSSHSource(hosts []inventory.Host, probeCmd string, dialTimeout time.Duration) *SSHSource {
	if probeCmd == "" {
		probeCmd = DefaultProbeCommand
	}
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	byID := make(map[string]inventory.Host, len(hosts))
	for _, h := range hosts {
		byID[h.HostID] = h
	}
	return &SSHSource{hosts: byID, probeCmd: probeCmd, dialTimeout: dialTimeout}
}

func (s *SSHSource) Sample(ctx context.Context, hostID string) (*MetricSnapshot, error) {
	host, ok := s.hosts[hostID]
	if !ok {
		return nil, fmt.Errorf("%w: host %q not in inventory", ErrUnreachable, hostID)
	}

	auth, err := authMethods(host)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	cfg := &ssh.ClientConfig{
		User:            host.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         s.dialTimeout,
	}

	client, err := ssh.Dial("tcp", host.Address, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrUnreachable, host.Address, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("%w: session %s: %v", ErrUnreachable, host.Address, err)
	}
	defer session.Close()

	// Closing the client unblocks session.Run when the context expires, so
	// an abandoned fetch never leaks the connection.
	watchdog := make(chan struct{})
	defer close(watchdog)
	go func() {
		select {
		case <-ctx.Done():
			client.Close()
		case <-watchdog:
		}
	}()

	var stdout bytes.Buffer
	session.Stdout = &stdout
	if err := session.Run(s.probeCmd); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: probe on %s: %v", ErrTimeout, host.HostID, ctx.Err())
		}
		return nil, fmt.Errorf("%w: probe on %s: %v", ErrUnreachable, host.HostID, err)
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: probe on %s: %v", ErrTimeout, host.HostID, ctx.Err())
	}

	var snap MetricSnapshot
	if err := json.Unmarshal(stdout.Bytes(), &snap); err != nil {
		return nil, fmt.Errorf("%w: probe output from %s: %v", ErrUnreachable, host.HostID, err)
	}

	// The fleet view is keyed by inventory id, not by what the remote
	// thinks its own name is.
	snap.HostID = hostID
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}
	return &snap, nil
}

func authMethods(h inventory.Host) ([]ssh.AuthMethod, error) {
	var auth []ssh.AuthMethod
	if h.KeyFile != "" {
		key, err := os.ReadFile(h.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse key file: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if h.Password != "" {
		auth = append(auth, ssh.Password(h.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("host %q has no credentials", h.HostID)
	}
	return auth, nil
}
