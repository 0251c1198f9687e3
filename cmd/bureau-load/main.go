// Command bureau-load is a demo load generator: it opens N concurrent
// connections to a bureau-server; each connection SETs keys with random
// values and then reads every key back with GET. The total count of
// completed operations and of value mismatches is printed at the end.
//
// Grounded on spec §8's "concrete scenarios" (bulk inserts forcing
// multiple flushes, round-trip verification of every written key) and
// mrsladoje-HundDB's app.go demo-seeding helpers, restructured as a
// standalone worker-pool binary using github.com/spf13/pflag for flags.
package main

import (
	"fmt"
	"math/rand"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	flag "github.com/spf13/pflag"

	"bureau/internal/protocol"
)

func main() {
	var (
		addr       = flag.String("addr", "127.0.0.1:7070", "bureau-server address")
		workers    = flag.Int("workers", 8, "number of concurrent client connections")
		opsPerConn = flag.Int("ops", 1000, "operations per connection")
		valueSize  = flag.Int("value-size", 64, "value size in bytes")
	)
	flag.Parse()

	var completed, mismatches int64
	var wg sync.WaitGroup

	start := time.Now()
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			if err := runWorker(workerID, *addr, *opsPerConn, *valueSize, &completed, &mismatches); err != nil {
				fmt.Fprintf(os.Stderr, "worker %d: %v\n", workerID, err)
			}
		}(w)
	}
	wg.Wait()

	elapsed := time.Since(start)
	total := atomic.LoadInt64(&completed)
	fmt.Printf("completed %d ops in %s (%.0f ops/sec), %d value mismatches\n",
		total, elapsed, float64(total)/elapsed.Seconds(), atomic.LoadInt64(&mismatches))

	if atomic.LoadInt64(&mismatches) > 0 {
		os.Exit(1)
	}
}

func runWorker(workerID int, addr string, ops int, valueSize int, completed, mismatches *int64) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	rng := rand.New(rand.NewSource(int64(workerID) + 1))
	written := make(map[string]string, ops)

	for i := 0; i < ops; i++ {
		key := fmt.Sprintf("w%d-k%d", workerID, i)
		value := randomString(rng, valueSize)

		if err := protocol.WriteSetRequest(conn, protocol.OpSet, key, []byte(value)); err != nil {
			return fmt.Errorf("SET %s: %w", key, err)
		}
		status, body, err := protocol.ReadReply(conn)
		if err != nil {
			return fmt.Errorf("SET %s reply: %w", key, err)
		}
		if err := protocol.ParseSetReply(status, body); err != nil {
			return fmt.Errorf("SET %s rejected: %w", key, err)
		}
		written[key] = value
		atomic.AddInt64(completed, 1)
	}

	for key, want := range written {
		if err := protocol.WriteGetRequest(conn, key); err != nil {
			return fmt.Errorf("GET %s: %w", key, err)
		}
		status, body, err := protocol.ReadReply(conn)
		if err != nil {
			return fmt.Errorf("GET %s reply: %w", key, err)
		}
		got, found, err := protocol.ParseGetReply(status, body)
		if err != nil {
			return fmt.Errorf("GET %s parse: %w", key, err)
		}
		if !found || string(got) != want {
			atomic.AddInt64(mismatches, 1)
		}
		atomic.AddInt64(completed, 1)
	}
	return nil
}

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomString(rng *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return string(b)
}
