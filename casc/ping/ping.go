/*
Copyright 2026 The Flurry Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package ping selects the lowest-latency CDN edge host. Each candidate is
// probed with a timed TCP connect; connect time tracks round-trip time well
// enough to rank hosts and needs no protocol exchange.
package ping

import (
	"context"
	"net"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ErrNoLiveHosts means every candidate host failed its probe.
var ErrNoLiveHosts = errors.New("ping: no live hosts")

const (
	probePort = "80"

	// probeTimeout caps each probe so host resolution cannot wedge on a
	// blackholed host.
	probeTimeout = 3 * time.Second
)

// dial is stubbed out in tests.
var dial = func(ctx context.Context, host string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, probePort))
	if err != nil {
		return err
	}
	return conn.Close()
}

// Fastest probes every host concurrently and returns the one that connected
// quickest. All probes run to completion (success or failure); the minimum
// is taken over the successes. If every probe fails, ErrNoLiveHosts is
// returned, unless the caller's context was cancelled.
func Fastest(ctx context.Context, hosts []string) (string, error) {
	if len(hosts) == 0 {
		return "", ErrNoLiveHosts
	}

	rtts := make([]time.Duration, len(hosts))
	var g errgroup.Group

	for n, host := range hosts {
		n, host := n, host
		rtts[n] = -1
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()

			start := time.Now()
			if err := dial(pctx, host); err != nil {
				glog.Warningf("ping: %s: %v", host, err)
				return nil
			}
			rtts[n] = time.Since(start)
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	best := -1
	for n, rtt := range rtts {
		if rtt < 0 {
			continue
		}
		if best < 0 || rtt < rtts[best] {
			best = n
		}
	}
	if best < 0 {
		return "", ErrNoLiveHosts
	}

	glog.Infof("ping: selected %s (%v)", hosts[best], rtts[best])
	return hosts[best], nil
}
