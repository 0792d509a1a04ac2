// Package discovery finds sibling AFC coordinator instances over mDNS, so
// an operator running several regional coordinators sharing an incumbent
// registry can discover peers without hardcoded addresses. It is optional:
// nothing in the core allocator or protocol depends on it.
package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

// serviceName is the mDNS service type AFC coordinators advertise under.
const serviceName = "_afc._tcp"

// Peer represents a discovered sibling AFC coordinator instance.
type Peer struct {
	Instance  string
	Hostname  string
	Addresses []net.IP
	Port      int
	TXT       []string
}

// DiscoverPeers performs a blocking mDNS browse for AFC coordinator
// instances, returning cleaned and deduplicated entries.
func DiscoverPeers(timeoutSeconds int) ([]Peer, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSeconds)*time.Second)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	resultMap := make(map[string]Peer)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case e, ok := <-entries:
				if !ok {
					close(done)
					return
				}
				if e == nil {
					continue
				}

				addrs := make([]net.IP, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
				addrs = append(addrs, e.AddrIPv4...)
				addrs = append(addrs, e.AddrIPv6...)

				key := fmt.Sprintf("%s|%d", e.HostName, e.Port)
				resultMap[key] = Peer{
					Instance:  cleanInstance(e.Instance),
					Hostname:  e.HostName,
					Addresses: addrs,
					Port:      e.Port,
					TXT:       append([]string{}, e.Text...),
				}

			case <-ctx.Done():
				close(done)
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, serviceName, "local.", entries); err != nil {
		return nil, fmt.Errorf("discovery: browse: %w", err)
	}

	<-done

	out := make([]Peer, 0, len(resultMap))
	for _, p := range resultMap {
		out = append(out, p)
	}
	return out, nil
}

// cleanInstance removes zeroconf escape sequences: "\ " => " ".
func cleanInstance(s string) string {
	return strings.ReplaceAll(s, `\ `, " ")
}
