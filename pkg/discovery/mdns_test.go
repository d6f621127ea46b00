package discovery

import (
	"net"
	"testing"

	"github.com/hashicorp/mdns"
)

func TestAddress(t *testing.T) {
	tests := []struct {
		name  string
		entry *mdns.ServiceEntry
		want  string
		ok    bool
	}{
		{"nil", nil, "", false},
		{"no ipv4", &mdns.ServiceEntry{Port: 8080}, "", false},
		{"no port", &mdns.ServiceEntry{AddrV4: net.IPv4(10, 0, 0, 2)}, "", false},
		{"ok", &mdns.ServiceEntry{AddrV4: net.IPv4(10, 0, 0, 2), Port: 8080}, "10.0.0.2:8080", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Address(tt.entry)
			if got != tt.want || ok != tt.ok {
				t.Errorf("Address() = %q, %v, want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}
