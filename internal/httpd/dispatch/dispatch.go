// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package dispatch owns the accept loop: one detached worker goroutine per
// connection, signal-driven cache reload and termination, and the mapping
// from a parsed request (or a parse failure) to an HTTP status and response
// entry.
package dispatch

import (
	"crypto/tls"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"nvhttpd/internal/accesslog"
	"nvhttpd/internal/httpd/request"
	"nvhttpd/internal/httpd/response"
	"nvhttpd/internal/httpd/transport"
)

// listenBacklog is the intended listen(2) backlog; net.Listen delegates the
// actual value to the OS (net.core.somaxconn).
const listenBacklog = 10

// Cache is the subset of *cache.Cache the dispatcher needs.
type Cache interface {
	Load(root string) error
	Find(path string) (CacheEntry, bool)
}

// CacheEntry mirrors cache.CacheEntry's response-relevant fields without
// importing the cache package's internal layout directly into this one.
type CacheEntry struct {
	Length int
	MIME   string
	Bytes  []byte
}

// Logger is the minimal logging surface the dispatcher needs.
type Logger interface {
	Errorf(format string, args ...any)
	Warnf(format string, args ...any)
	Infof(format string, args ...any)
}

// ConnectionObserver receives connection-lifecycle events, for metrics.
type ConnectionObserver interface {
	ConnectionOpened()
	ConnectionClosed()
	ObserveRequest(status int, bodyBytes int)
}

// Config carries everything the dispatcher needs that is not itself a
// collaborator: bind address/port, the HTML root to reload from, optional
// TLS material, and any extra response headers pre-joined into a
// CRLF-terminated block.
type Config struct {
	BindAddress  string
	Port         int
	HTMLRoot     string
	ExtraHeaders string

	TLSEnabled  bool
	CertFile    string
	KeyFile     string
}

// tlsCipherSuites is the fixed cipher list for the TLS 1.2+ server context;
// Go's crypto/tls negotiates TLS 1.3 ciphers itself and ignores this list
// for 1.3 connections, so this only constrains the 1.2 floor.
var tlsCipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
}

// errorPagePath maps an error status to the on-disk page served for it. A
// status whose page is absent from the cache falls back to a synthesized
// plain-text body.
var errorPagePath = map[int]string{
	400: "/error/400/index.html",
	404: "/error/404/index.html",
	500: "/error/500/index.html",
	501: "/error/501/index.html",
}

// Dispatcher runs the accept loop and spawns one worker per connection. Its
// zero value is not usable; construct with New.
type Dispatcher struct {
	cfg       Config
	cache     Cache
	logger    Logger
	observer  ConnectionObserver
	accessLog accesslog.Sink

	listener net.Listener
	tlsConf  *tls.Config

	reload    uint32 // set by SIGUSR1, cleared at the top of each accept iteration
	terminate uint32 // set by SIGINT, observed between accepts

	sigCh chan os.Signal
	wg    sync.WaitGroup

	stopOnce sync.Once
	stopped  chan struct{}
}

// New builds a Dispatcher bound to cfg's address/port. It does not start
// accepting connections; call Run for that. accessLog is optional: a nil
// Sink simply means no per-request entry is recorded.
func New(cfg Config, cache Cache, logger Logger, observer ConnectionObserver, accessLog accesslog.Sink) (*Dispatcher, error) {
	d := &Dispatcher{
		cfg:       cfg,
		cache:     cache,
		logger:    logger,
		observer:  observer,
		accessLog: accessLog,
		stopped:   make(chan struct{}),
	}

	if cfg.TLSEnabled {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, err
		}
		d.tlsConf = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			CipherSuites: tlsCipherSuites,
			Certificates: []tls.Certificate{cert},
		}
	}

	addr := cfg.BindAddress
	if addr == "any" {
		addr = ""
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(addr, strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, err
	}
	d.listener = ln
	return d, nil
}

// installSignalHandlers wires SIGINT to terminate, SIGUSR1 to reload, and
// SIGPIPE to a no-op so a peer closing mid-write surfaces as a write error
// on that worker rather than killing the process.
func (d *Dispatcher) installSignalHandlers() {
	d.sigCh = make(chan os.Signal, 4)
	signal.Notify(d.sigCh, os.Interrupt, syscall.SIGUSR1, syscall.SIGPIPE)
	go func() {
		for sig := range d.sigCh {
			switch sig {
			case os.Interrupt:
				atomic.StoreUint32(&d.terminate, 1)
				d.listener.Close()
			case syscall.SIGUSR1:
				atomic.StoreUint32(&d.reload, 1)
			case syscall.SIGPIPE:
				// ignored
			}
		}
	}()
}

// Run executes the accept loop until a terminate signal is observed or Stop
// is called. It blocks the calling goroutine.
func (d *Dispatcher) Run() error {
	d.installSignalHandlers()
	defer signal.Stop(d.sigCh)

	for {
		if atomic.CompareAndSwapUint32(&d.reload, 1, 0) {
			if err := d.cache.Load(d.cfg.HTMLRoot); err != nil {
				if d.logger != nil {
					d.logger.Errorf("dispatch: reload failed, stopping: %v", err)
				}
				return err
			}
		}

		conn, err := d.listener.Accept()
		if err != nil {
			if atomic.LoadUint32(&d.terminate) == 1 {
				d.wg.Wait()
				close(d.stopped)
				return nil
			}
			if d.logger != nil {
				d.logger.Warnf("dispatch: accept error: %v", err)
			}
			continue
		}

		if d.tlsConf != nil {
			tlsConn := tls.Server(conn, d.tlsConf)
			if err := tlsConn.Handshake(); err != nil {
				if d.logger != nil {
					d.logger.Warnf("dispatch: tls handshake failed: %v", err)
				}
				tlsConn.Close()
				continue
			}
			conn = tlsConn
		}

		d.wg.Add(1)
		go d.serve(conn)
	}
}

// Stop requests termination as if SIGINT had been delivered, for callers
// that manage their own signal handling (e.g. tests).
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		atomic.StoreUint32(&d.terminate, 1)
		d.listener.Close()
	})
}

// Stopped is closed once Run has returned after observing termination and
// draining in-flight workers.
func (d *Dispatcher) Stopped() <-chan struct{} { return d.stopped }

// Addr returns the address the listener is bound to, useful when Port was
// 0 (OS-assigned) as in tests.
func (d *Dispatcher) Addr() string { return d.listener.Addr().String() }

// serve is the per-connection worker: parse, resolve, assemble, send,
// close. It returns no error to Run (failures are logged); every exit path
// releases the connection.
func (d *Dispatcher) serve(conn net.Conn) {
	defer d.wg.Done()
	if d.observer != nil {
		d.observer.ConnectionOpened()
		defer d.observer.ConnectionClosed()
	}

	tr := transport.New(conn)
	defer tr.Close()

	start := time.Now()
	req, perr := request.Parse(tr)
	if perr != nil {
		if perr.Kind == request.ErrIO {
			return
		}
		status := statusForParseError(perr.Kind)
		bytes := d.sendErrorPage(tr, status, false)
		d.recordAccess(start, "-", "-", status, bytes)
		return
	}

	d.sendForRequest(tr, req, start)
}

// recordAccess writes one completed-request entry if an access-log sink is
// configured; failures to log never affect the response already sent.
func (d *Dispatcher) recordAccess(start time.Time, method, path string, status, bodyBytes int) {
	if d.accessLog == nil {
		return
	}
	entry := accesslog.Entry{
		At:       start,
		Method:   method,
		Path:     path,
		Status:   status,
		Bytes:    bodyBytes,
		Duration: time.Since(start),
	}
	if err := d.accessLog.Write(entry); err != nil && d.logger != nil {
		d.logger.Warnf("dispatch: access log write failed: %v", err)
	}
}

// statusForParseError implements the Parser-outcome → Status table for
// every outcome other than OK and IO_ERROR.
func statusForParseError(kind request.ErrKind) int {
	switch kind {
	case request.ErrBad:
		return 400
	case request.ErrNotImplemented:
		return 501
	default:
		return 500
	}
}

// methodSupported enforces the dispatcher-only GET/HEAD policy: the parser
// recognizes all eight verbs, but only these two are serviced.
func methodSupported(m request.Method) bool {
	return m == request.MethodGET || m == request.MethodHEAD
}

func (d *Dispatcher) sendForRequest(tr *transport.Transport, req *request.Request, start time.Time) {
	if !methodSupported(req.Method) {
		bytes := d.sendErrorPage(tr, 501, false)
		d.recordAccess(start, req.Method.String(), req.URI, 501, bytes)
		return
	}

	isHead := req.Method == request.MethodHEAD
	entry, hit := d.cache.Find(req.URI)
	if hit {
		bytes := d.send(tr, 200, entry, isHead)
		d.recordAccess(start, req.Method.String(), req.URI, 200, bytes)
		return
	}
	bytes := d.sendErrorPage(tr, 404, isHead)
	d.recordAccess(start, req.Method.String(), req.URI, 404, bytes)
}

// sendErrorPage resolves the on-disk error page for status (falling back to
// the synthesized plain-text entry when it too is absent from the cache),
// sends it, and returns the entry's length for the access log.
func (d *Dispatcher) sendErrorPage(tr *transport.Transport, status int, isHead bool) int {
	path, ok := errorPagePath[status]
	var entry CacheEntry
	var hit bool
	if ok {
		entry, hit = d.cache.Find(path)
	}
	respEntry := response.Entry{Length: entry.Length, MIME: entry.MIME, Bytes: entry.Bytes}
	if !hit {
		respEntry = response.Fallback(status)
	}
	if err := response.Write(tr, status, respEntry, isHead, d.cfg.ExtraHeaders, time.Now()); err != nil {
		if d.logger != nil {
			d.logger.Errorf("dispatch: write failed: %v", err)
		}
	}
	if d.observer != nil {
		bodyBytes := respEntry.Length
		if isHead {
			bodyBytes = 0
		}
		d.observer.ObserveRequest(status, bodyBytes)
	}
	return respEntry.Length
}

func (d *Dispatcher) send(tr *transport.Transport, status int, entry CacheEntry, isHead bool) int {
	respEntry := response.Entry{Length: entry.Length, MIME: entry.MIME, Bytes: entry.Bytes}
	if err := response.Write(tr, status, respEntry, isHead, d.cfg.ExtraHeaders, time.Now()); err != nil {
		if d.logger != nil {
			d.logger.Errorf("dispatch: write failed: %v", err)
		}
	}
	if d.observer != nil {
		bodyBytes := respEntry.Length
		if isHead {
			bodyBytes = 0
		}
		d.observer.ObserveRequest(status, bodyBytes)
	}
	return respEntry.Length
}
