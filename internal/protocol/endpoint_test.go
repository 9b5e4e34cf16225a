package protocol

import "testing"

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Endpoint
		wantErr bool
	}{
		{"bare port", "8990", Endpoint{Network: "tcp", Addr: "0.0.0.0:8990"}, false},
		{"host and port", "primary.example.com:8990", Endpoint{Network: "tcp", Addr: "primary.example.com:8990"}, false},
		{"ip and port", "10.0.0.5:9000", Endpoint{Network: "tcp", Addr: "10.0.0.5:9000"}, false},
		{"unix path", "/tmp/test_queue_123_abc.sock", Endpoint{Network: "unix", Addr: "/tmp/test_queue_123_abc.sock"}, false},
		{"relative unix path", "run.sock", Endpoint{Network: "unix", Addr: "run.sock"}, false},
		{"empty", "", Endpoint{}, true},
		{"port out of range", "99999", Endpoint{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEndpoint(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseEndpoint(%q) = %+v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEndpoint(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseEndpoint(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}
