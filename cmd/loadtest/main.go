package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	grpcwire "github.com/codewandler/clstr-fiber/adapters/grpc"
	"github.com/codewandler/clstr-fiber/adapters/nats"
	"github.com/codewandler/clstr-fiber/core/app"
	"github.com/codewandler/clstr-fiber/core/dispatch"
	"github.com/codewandler/clstr-fiber/core/entity"
	"github.com/codewandler/clstr-fiber/core/mailbox"
	"github.com/codewandler/clstr-fiber/core/message"
	"github.com/codewandler/clstr-fiber/core/msgqueue"
	"github.com/codewandler/clstr-fiber/core/proxy"
	"github.com/codewandler/clstr-fiber/ports/kv"
)

// === Config ===

// NOTE: the nats backend expects a server on the default URL:
// docker run --net=host nats:latest -js

var (
	logLevel    = slog.LevelWarn
	N           = getEnvInt("N", 200_000)
	batchSize   = getEnvInt("B", 10_000)
	entities    = getEnvInt("ENTITIES", 64)
	callers     = getEnvInt("CALLERS", 8)
	fibers      = getEnvInt("FIBERS", 4)
	backendType = getEnv("BACKEND", "memory")
)

func getEnv(key, fallback string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil {
		return fallback
	}
	return v
}

// === Domain ===

type (
	Add struct {
		Amount int `json:"amount"`
	}
	Sum struct {
		message.ResponseHeader
		Total int `json:"total"`
	}
	counter struct{ total int }
)

func handlers() []dispatch.Registration {
	return []dispatch.Registration{
		dispatch.HandleRequest(func(_ dispatch.Ctx, e *entity.Entity, req Add, resp *Sum) error {
			c, ok := entity.GetComponent[*counter](e)
			if !ok {
				c = &counter{}
				entity.AddComponent(e, c)
			}
			c.total += req.Amount
			resp.Total = c.total
			return nil
		}),
	}
}

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))

	fmt.Printf("Backend: %s\n", backendType)
	fmt.Printf("  Calls: %d over %d entities from %d callers\n", N, entities, callers)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	serverWire, clientWire, closeWires := createWires(log)
	defer closeWires()
	store := kv.NewMemStore()

	server, err := app.Run(app.Config{
		Context: ctx, Log: log, ProcessID: 1, Fibers: fibers,
		Wire: serverWire, Locations: store,
	}, handlers()...)
	checkErr(err)
	defer server.Stop()

	client, err := app.Run(app.Config{
		Context: ctx, Log: log, ProcessID: 2, Fibers: 1,
		Wire: clientWire, Locations: store,
	})
	checkErr(err)
	defer client.Stop()

	for id := range entities {
		_, _, err := server.Spawn(ctx, int64(id+1), "counter", mailbox.OrderedDispatch)
		checkErr(err)
	}

	// === START ===

	fmt.Println("==================================")
	startAt := time.Now()
	lastTime := startAt

	var (
		done     atomic.Int64
		failures atomic.Int64
		wg       sync.WaitGroup
		report   sync.Mutex
	)
	for c := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := client.Exec(ctx, func(ctx context.Context) error {
				for i := c; i < N; i += callers {
					id := int64(i%entities + 1)
					if _, err := proxy.CallAs[Sum](ctx, client.Proxy(), id, Add{Amount: 1}, true); err != nil {
						failures.Add(1)
					}
					n := done.Add(1)
					if n%int64(batchSize) == 0 {
						report.Lock()
						now := time.Now()
						took := now.Sub(lastTime)
						mu := getMemUsage()
						fmt.Printf(" | %7d calls | %6d ms | %7d calls/s | (%d / %d) MiB mem (sys) |\n",
							batchSize, took.Milliseconds(), int(float64(batchSize)/took.Seconds()),
							mu.Alloc/1024/1024, mu.Sys/1024/1024)
						lastTime = now
						report.Unlock()
					}
				}
				return nil
			})
			checkErr(err)
		}()
	}
	wg.Wait()

	// === stats ===
	fmt.Println("==================================")
	took := time.Since(startAt)
	runtime.GC()
	fmt.Printf("total runtime: %.3f seconds\n", took.Seconds())
	fmt.Printf("     failures: %d\n", failures.Load())
	fmt.Printf(" avg. calls/s: %d\n", int(float64(N)/took.Seconds()))
}

// === Wires ===

func createWires(log *slog.Logger) (server, client msgqueue.Wire, closeAll func()) {
	switch backendType {
	case "nats":
		connect := nats.ReuseConnection(nats.ConnectDefault())
		s, err := nats.NewWire(nats.WireConfig{Connect: connect, Log: log, SubjectPrefix: "clstr.loadtest"})
		checkErr(err)
		c, err := nats.NewWire(nats.WireConfig{Connect: connect, Log: log, SubjectPrefix: "clstr.loadtest"})
		checkErr(err)
		return s, c, func() { _ = c.Close(); _ = s.Close() }
	case "grpc":
		s, err := grpcwire.NewWire(grpcwire.WireConfig{Listen: "127.0.0.1:0", Log: log})
		checkErr(err)
		c, err := grpcwire.NewWire(grpcwire.WireConfig{Listen: "127.0.0.1:0", Log: log})
		checkErr(err)
		s.SetPeer(2, c.Addr())
		c.SetPeer(1, s.Addr())
		return s, c, func() { _ = c.Close(); _ = s.Close() }
	default:
		w := msgqueue.NewMemoryWire()
		return w, w, func() { _ = w.Close() }
	}
}

// === stats helpers ===

type MemUsage struct {
	Alloc uint64 // bytes allocated and not yet freed (heap)
	Sys   uint64 // total bytes obtained from OS
}

func getMemUsage() MemUsage {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemUsage{Alloc: m.Alloc, Sys: m.Sys}
}

func checkErr(err error) {
	if err != nil {
		panic(err)
	}
}
