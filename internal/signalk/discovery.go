package signalk

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// mDNS service advertised by Signal K servers for their REST API.
const (
	ServiceTypeHTTP = "_signalk-http._tcp"
	Domain          = "local."
)

// Discover browses mDNS for a Signal K server and returns the base URL of
// the first one found, e.g. "http://192.168.1.10:3000".
func Discover(ctx context.Context, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		_ = zeroconf.Browse(ctx, ServiceTypeHTTP, Domain, entries, removed)
	}()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return "", ErrNoServer
			}
			if u := entryURL(entry); u != "" {
				return u, nil
			}
		case <-removed:
		case <-ctx.Done():
			return "", fmt.Errorf("%w within %s", ErrNoServer, timeout)
		}
	}
}

// entryURL builds a base URL from an mDNS entry, preferring IPv4.
// A "tls=true" or "proto=https" TXT record selects https.
func entryURL(entry *zeroconf.ServiceEntry) string {
	if entry == nil || entry.Port == 0 {
		return ""
	}

	var host string
	switch {
	case len(entry.AddrIPv4) > 0:
		host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		host = entry.AddrIPv6[0].String()
	case entry.HostName != "":
		host = strings.TrimSuffix(entry.HostName, ".")
	default:
		return ""
	}

	scheme := "http"
	for _, txt := range entry.Text {
		if strings.EqualFold(txt, "tls=true") || strings.EqualFold(txt, "proto=https") {
			scheme = "https"
		}
	}

	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(entry.Port))
}
