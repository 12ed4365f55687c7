// Command authgate-loadtest exercises the session store and the permission
// resolver under concurrent load and prints latency percentiles per phase.
// Points at a real Redis via -redis-addr or REDIS_ADDR; falls back to an
// embedded miniredis.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/selcaux/authgate/permission"
	"github.com/selcaux/authgate/session"
)

func main() {
	var (
		sessions    = flag.Int("sessions", 100000, "number of sessions to seed")
		users       = flag.Int("users", 10000, "number of distinct users")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "ag", "session key prefix")
	)
	flag.Parse()

	if *sessions <= 0 || *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	store := session.NewStore(client, *prefix)

	hashes := make([]string, *sessions)
	fmt.Printf("seeding %d sessions across %d users...\n", *sessions, *users)
	startSeed := time.Now()
	now := time.Now()
	for i := 0; i < *sessions; i++ {
		hashes[i] = session.HashToken(fmt.Sprintf("refresh-credential-%d", i))
		sess := &session.Session{
			SessionID: fmt.Sprintf("sid-%d", i),
			UserID:    fmt.Sprintf("user-%d", i%*users),
			TokenHash: hashes[i],
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(24 * time.Hour).Unix(),
		}
		if err := store.Save(ctx, sess, now); err != nil {
			fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	lookupStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		_, err := store.GetByHash(ctx, hashes[r.Intn(len(hashes))])
		return err
	})

	blacklistStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		_, err := store.IsRevoked(ctx, hashes[r.Intn(len(hashes))])
		return err
	})

	resolver := permission.NewResolver(&syntheticRoles{}, permission.Config{
		TTL:    time.Hour,
		Shards: 64,
	})
	resolveStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		userID := fmt.Sprintf("user-%d", r.Intn(*users))
		_, err := resolver.Resolve(ctx, userID, false)
		return err
	})

	fmt.Println("---- results ----")
	printStats("lookup", lookupStats)
	printStats("blacklist", blacklistStats)
	printStats("resolve", resolveStats)
}

// syntheticRoles fabricates a small stable role set per user so the resolve
// phase measures cache behavior, not role-store latency.
type syntheticRoles struct{}

func (syntheticRoles) RolesForUser(_ context.Context, userID string) ([]permission.Role, error) {
	return []permission.Role{
		{ID: "r-" + userID, Name: "member", Permissions: []string{"content:read", "content:write"}},
	}, nil
}

func (syntheticRoles) UserIDsWithRole(context.Context, string) ([]string, error) {
	return nil, nil
}

func runPhase(ops, concurrency int, op func(*rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	pct := func(p float64) time.Duration {
		idx := int(p * float64(len(samples)-1))
		return samples[idx]
	}
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      pct(0.50),
		p95:      pct(0.95),
		p99:      pct(0.99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%-10s ops=%d failures=%d total=%s p50=%s p95=%s p99=%s ops/s=%.0f\n",
		name, s.ops, s.failures, s.total.Round(time.Millisecond),
		s.p50, s.p95, s.p99, s.opsPerS)
}
