package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rjboer/afc-engine/internal/protocol"
)

// inquire is overridden in tests to avoid a real network round trip; it is
// the package-level seam the teacher's main_test.go swapped as `dial`.
var inquire = sendInquiry

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Getenv); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer, getenv func(string) string) error {
	fs := flag.NewFlagSet("afc-engine", flag.ContinueOnError)
	serverAddr := fs.String("server-addr", "", "AFC server base URL")
	lat := fs.Float64("lat", 38.9, "Requesting device latitude")
	lon := fs.Float64("lon", -77.0, "Requesting device longitude")
	cfi := fs.Int("cfi", 1, "Channel frequency index to inquire")
	if err := fs.Parse(args); err != nil {
		return err
	}

	addr := *serverAddr
	if addr == "" {
		addr = getenv("AFC_SERVER_ADDR")
	}
	if addr == "" {
		addr = "http://localhost:8080"
	}

	resp, err := inquire(addr, *lat, *lon, *cfi)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "response code: %d\n", resp.ResponseCode)
	for _, info := range resp.AvailableChannelInfo {
		fmt.Fprintf(stdout, "channels %v -> maxEirp %v dBm\n", info.ChannelCfi, info.MaxEirp)
	}
	return nil
}

// sendInquiry issues a single availableSpectrumInquiry request against
// addr and decodes the response.
func sendInquiry(addr string, lat, lon float64, cfi int) (*protocol.Response, error) {
	req := protocol.Request{
		Location:         &protocol.Location{Lat: &lat, Lon: &lon},
		InquiredChannels: []protocol.ChannelItem{{ChannelCfi: []int{cfi}}},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	httpResp, err := client.Post(addr+"/availableSpectrumInquiry", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("post inquiry: %w", err)
	}
	defer httpResp.Body.Close()

	var resp protocol.Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}
