// Command haspkeyd emulates a HASP HL USB dongle: it loads a token
// definition, runs the protocol's command dispatch loop against a
// transport adapter, and exposes a read-only status API over HTTP.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/hasp-go/haspkeyd/internal/api"
	"github.com/hasp-go/haspkeyd/internal/audit"
	"github.com/hasp-go/haspkeyd/internal/hasp"
	"github.com/hasp-go/haspkeyd/internal/keyfile"
	"github.com/hasp-go/haspkeyd/internal/store"
	"github.com/hasp-go/haspkeyd/internal/transport"
)

// registry adapts a single live TokenState to the api.Registry interface.
// haspkeyd emulates one token per process; a multi-token deployment runs
// one process per serial, matching the "each TokenState is owned by
// exactly one logical port" model of spec.md §5.
type registry struct {
	mu sync.Mutex
	ts *hasp.TokenState
}

func (r *registry) Snapshot() []api.TokenStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	sn := r.ts.Key.SerialNumber()
	return []api.TokenStatus{{
		Serial:      fmt.Sprintf("%x", sn),
		Name:        r.ts.Key.Name,
		Fingerprint: r.ts.Key.Fingerprint,
		IsInitDone:  r.ts.IsInitDone,
		IsKeyOpened: r.ts.IsKeyOpened,
	}}
}

func main() {
	log.SetFlags(0)
	cfg := loadConfig()

	if cfg.KeyFile == "" {
		log.Fatal("haspkeyd: -keyfile (or HASPKEYD_KEYFILE) is required")
	}

	key, err := keyfile.Load(cfg.KeyFile)
	if err != nil {
		log.Fatalf("haspkeyd: %v", err)
	}

	var storeOpts []store.Option
	if cfg.StateKey != "" {
		storeOpts = append(storeOpts, store.WithEncryptionKey(cfg.StateKey))
	}
	eeprom, err := store.Open(cfg.StateDB, storeOpts...)
	if err != nil {
		log.Fatalf("haspkeyd: %v", err)
	}
	defer eeprom.Close()

	serial := key.SerialNumber()
	snap, found, err := eeprom.Load(serial)
	if err != nil {
		log.Fatalf("haspkeyd: %v", err)
	}
	if found {
		key.Memory = snap.Memory
	}

	auditLog, err := audit.Open(cfg.AuditDB)
	if err != nil {
		log.Fatalf("haspkeyd: %v", err)
	}
	defer auditLog.Close()

	ts := hasp.NewTokenState(key)
	if found {
		ts.ChiperKey1 = snap.ChiperKey1
		ts.ChiperKey2 = snap.ChiperKey2
		ts.EncodedStatus = snap.EncodedStatus
		ts.IsInitDone = snap.IsInitDone
		ts.IsKeyOpened = snap.IsKeyOpened
	}

	reg := &registry{ts: ts}
	dispatcher := hasp.NewCommandDispatcher()
	adapter := transport.NewLoopback()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("haspkeyd: shutting down")
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runDispatchLoop(ctx, adapter, reg, dispatcher, auditLog)
	}()

	srv := api.New(reg, auditLog)
	if err := srv.Run(ctx, cfg.HTTPAddr); err != nil {
		log.Printf("haspkeyd: api server: %v", err)
	}

	cancel()
	wg.Wait()

	reg.mu.Lock()
	snap := store.Snapshot{
		Memory:        ts.Key.Memory,
		ChiperKey1:    ts.ChiperKey1,
		ChiperKey2:    ts.ChiperKey2,
		EncodedStatus: ts.EncodedStatus,
		IsInitDone:    ts.IsInitDone,
		IsKeyOpened:   ts.IsKeyOpened,
	}
	reg.mu.Unlock()

	if err := eeprom.Save(serial, snap); err != nil {
		log.Printf("haspkeyd: saving state: %v", err)
	}
}

// runDispatchLoop is the single-threaded, non-reentrant dispatch loop of
// spec.md §5: it fetches one request at a time from adapter, mutates the
// one TokenState this process owns, and submits the response before
// fetching the next request.
func runDispatchLoop(ctx context.Context, adapter *transport.Loopback, reg *registry, dispatcher *hasp.CommandDispatcher, auditLog *audit.Log) {
	for {
		req, buf, err := adapter.Fetch(ctx)
		if err != nil {
			return
		}

		reg.mu.Lock()
		resp, status, derr := dispatcher.Dispatch(reg.ts, req.MajorFn, req.P1, req.P2, req.P3, int(req.OutCap))
		reg.mu.Unlock()

		n := copy(buf, resp)

		if auditLog != nil {
			sn := reg.ts.Key.SerialNumber()
			detail := fmt.Sprintf("p1=%#04x p2=%#04x p3=%#04x", req.P1, req.P2, req.P3)
			if derr != nil {
				detail = fmt.Sprintf("%s %v", detail, derr)
			}
			_ = auditLog.Record(ctx, audit.Event{
				TS:      audit.Now(),
				Serial:  fmt.Sprintf("%x", sn),
				MajorFn: req.MajorFn,
				Status:  status,
				Detail:  detail,
			})
		}

		if err := adapter.Submit(ctx, n); err != nil {
			return
		}
	}
}
