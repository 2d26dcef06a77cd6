// Copyright 2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package upstreamldap

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"k8s.io/utils/clock"

	"go.pinniped.dev/kube-ldap/internal/constable"
	"go.pinniped.dev/kube-ldap/internal/directory"
	"go.pinniped.dev/kube-ldap/internal/plog"
)

const ErrPoolClosed = constable.Error("LDAP connection pool is closed")

// PoolObserver is told about pool events, e.g. to export metrics.  All methods must be safe for concurrent use.
type PoolObserver interface {
	ConnectionCheckedOut(reused bool, wait time.Duration)
	ConnectionDiscarded(reason string)
}

type nopPoolObserver struct{}

func (nopPoolObserver) ConnectionCheckedOut(bool, time.Duration) {}
func (nopPoolObserver) ConnectionDiscarded(string)               {}

// Pool hands out Clients with exclusive ownership.  At most size Clients are checked out at once, and
// unbound Clients are kept for reuse until they have been idle for longer than maxIdleTime.
type Pool struct {
	dial        func(ctx context.Context) (Conn, error)
	newClient   func(conn Conn) *Client
	sem         *semaphore.Weighted
	maxIdleTime time.Duration
	clock       clock.Clock
	observer    PoolObserver

	mu     sync.Mutex
	idle   []*Client
	closed bool
}

func newPool(
	dial func(ctx context.Context) (Conn, error),
	newClient func(conn Conn) *Client,
	size int64,
	maxIdleTime time.Duration,
	clock clock.Clock,
	observer PoolObserver,
) *Pool {
	if observer == nil {
		observer = nopPoolObserver{}
	}
	return &Pool{
		dial:        dial,
		newClient:   newClient,
		sem:         semaphore.NewWeighted(size),
		maxIdleTime: maxIdleTime,
		clock:       clock,
		observer:    observer,
	}
}

// Get waits until a Client may be checked out, then returns an idle one or dials a new one.
// Every Client returned by Get must be given back with Put.
func (p *Pool) Get(ctx context.Context) (*Client, error) {
	start := p.clock.Now()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: waiting for an LDAP connection: %w", directory.ErrConnection, err)
	}

	client, err := p.checkout(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}

	p.observer.ConnectionCheckedOut(!client.lastUsed.IsZero(), p.clock.Since(start))
	return client, nil
}

func (p *Pool) checkout(ctx context.Context) (*Client, error) {
	for {
		client, closed := p.popIdle()
		if closed {
			return nil, ErrPoolClosed
		}
		if client == nil {
			break
		}
		if p.clock.Since(client.lastUsed) > p.maxIdleTime {
			p.discard(client, "idle")
			continue
		}
		if client.conn.IsClosing() {
			p.discard(client, "closing")
			continue
		}
		return client, nil
	}

	conn, err := p.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", directory.ErrConnection, err)
	}
	return p.newClient(conn), nil
}

func (p *Pool) popIdle() (*Client, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, true
	}
	if len(p.idle) == 0 {
		return nil, false
	}
	// most recently used first, so that rarely needed connections expire
	client := p.idle[len(p.idle)-1]
	p.idle = p.idle[:len(p.idle)-1]
	return client, false
}

// Put gives back a Client obtained from Get.  Clients which are not unbound and healthy are closed.
func (p *Pool) Put(client *Client) {
	defer p.sem.Release(1)

	if !client.reusable() {
		p.discard(client, "unusable")
		return
	}

	client.lastUsed = p.clock.Now()

	p.mu.Lock()
	if !p.closed {
		p.idle = append(p.idle, client)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.discard(client, "pool closed")
}

// Close closes all idle connections.  Clients which are checked out are closed when they are given back.
func (p *Pool) Close() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.closed = true
	p.mu.Unlock()

	for _, client := range idle {
		p.discard(client, "pool closed")
	}
}

func (p *Pool) discard(client *Client, reason string) {
	p.observer.ConnectionDiscarded(reason)
	if err := client.conn.Close(); err != nil {
		plog.DebugErr("error closing LDAP connection", err, "reason", reason)
	}
}
