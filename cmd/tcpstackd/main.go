// Command tcpstackd wires pkg/config, pkg/netif and pkg/router into a
// running protocol stack: it brings up the configured
// NetworkInterfaces, installs the configured routes into a Router, and
// drives both with a periodic tick loop. It does not open any real
// sockets or TUN devices; frame transport is an adapter contract left to
// the embedder, per the stack's Non-goals.
package main

import (
	"encoding/binary"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/qmmzzdx/tcpip-network-protocol-stack/pkg/config"
	"github.com/qmmzzdx/tcpip-network-protocol-stack/pkg/core"
	"github.com/qmmzzdx/tcpip-network-protocol-stack/pkg/logging"
	"github.com/qmmzzdx/tcpip-network-protocol-stack/pkg/netif"
	"github.com/qmmzzdx/tcpip-network-protocol-stack/pkg/router"
	"github.com/qmmzzdx/tcpip-network-protocol-stack/pkg/wire"
)

const tickIntervalMs = 100

func main() {
	dval := strings.ToLower(strings.TrimSpace(os.Getenv("DEBUG")))
	debugOn := dval == "1" || dval == "true" || dval == "yes" || dval == "on"

	cfg := config.DefaultConfig()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := config.LoadFromFile(path, cfg); err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	config.LoadFromEnv(cfg)

	if debugOn {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.ApplyLogging(); err != nil {
		log.Fatalf("config: %v", err)
	}
	core.SetDebugMode(debugOn)

	rt := router.New()
	ifaceIndex := make(map[string]int, len(cfg.Interfaces))

	for _, icfg := range cfg.Interfaces {
		mac, err := net.ParseMAC(icfg.MAC)
		if err != nil {
			log.Fatalf("interface %s: %v", icfg.Name, err)
		}
		ip := net.ParseIP(icfg.IP).To4()
		if ip == nil {
			log.Fatalf("interface %s: invalid IP %s", icfg.Name, icfg.IP)
		}

		var macArr [6]byte
		copy(macArr[:], mac)
		var ipArr [4]byte
		copy(ipArr[:], ip)

		name := icfg.Name
		nic := netif.New(name, macArr, ipArr, func(frame wire.EthernetFrame) {
			logging.Debugf("interface %s: frame out, %d bytes payload", name, len(frame.Payload))
		})

		idx := rt.AddInterface(nic)
		ifaceIndex[icfg.Name] = idx
		logging.Infof("brought up interface %s (idx=%d, mac=%s, ip=%s)", icfg.Name, idx, icfg.MAC, icfg.IP)
	}

	for _, rcfg := range cfg.Routes {
		prefixIP := net.ParseIP(rcfg.Prefix).To4()
		if prefixIP == nil {
			log.Fatalf("route: invalid prefix %s", rcfg.Prefix)
		}
		prefix := binary.BigEndian.Uint32(prefixIP)

		var nextHop *[4]byte
		if rcfg.NextHop != "" {
			nh := net.ParseIP(rcfg.NextHop).To4()
			if nh == nil {
				log.Fatalf("route: invalid next hop %s", rcfg.NextHop)
			}
			var nhArr [4]byte
			copy(nhArr[:], nh)
			nextHop = &nhArr
		}

		rt.AddRoute(prefix, uint8(rcfg.PrefixLength), nextHop, rcfg.InterfaceIndex)
		logging.Infof("installed route %s/%d via interface %d", rcfg.Prefix, rcfg.PrefixLength, rcfg.InterfaceIndex)
	}

	stopCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(tickIntervalMs * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				for i := 0; i < len(cfg.Interfaces); i++ {
					rt.Interface(i).Tick(tickIntervalMs)
				}
				rt.Route()
			}
		}
	}()

	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		http.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
			m := rt.Metrics()
			w.Write([]byte(strings.Join([]string{
				"datagrams_routed ", itoa(m.DatagramsRouted),
				"\ndatagrams_dropped ", itoa(m.DatagramsDropped), "\n",
			}, "")))
		})
		if err := http.ListenAndServe(":8080", nil); err != nil {
			logging.Warnf("health endpoint stopped: %v", err)
		}
	}()

	sigc := make(chan os.Signal, 2)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	close(stopCh)
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
