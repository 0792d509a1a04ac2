// Command afc-client issues a single availableSpectrumInquiry request
// against an afc-server instance and prints the decoded response, in the
// teacher's mdns-test one-shot diagnostic style.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/rjboer/afc-engine/internal/protocol"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "AFC server base URL")
	lat := flag.Float64("lat", 38.9, "Requesting device latitude")
	lon := flag.Float64("lon", -77.0, "Requesting device longitude")
	cfi := flag.Int("cfi", 1, "Channel frequency index to inquire")
	operatingClass := flag.Int("operating-class", 131, "Global operating class")
	maxRetries := flag.Int("max-retries", 3, "Maximum request retries on transport failure")
	timeoutSeconds := flag.Int("timeout", 10, "Per-attempt HTTP timeout in seconds")
	flag.Parse()

	class := *operatingClass
	req := protocol.Request{
		Location:         &protocol.Location{Lat: lat, Lon: lon},
		InquiredChannels: []protocol.ChannelItem{{GlobalOperatingClass: &class, ChannelCfi: []int{*cfi}}},
	}

	fmt.Println("===============================================================")
	fmt.Println(" AFC Available Spectrum Inquiry")
	fmt.Println("===============================================================")
	fmt.Printf(" Server   : %s\n", *server)
	fmt.Printf(" Location : %.5f, %.5f\n", *lat, *lon)
	fmt.Printf(" CFI      : %d (operating class %d)\n", *cfi, class)
	fmt.Println("---------------------------------------------------------------")

	client := &http.Client{Timeout: time.Duration(*timeoutSeconds) * time.Second}

	start := time.Now()
	resp, err := sendWithRetry(client, *server, req, *maxRetries)
	duration := time.Since(start)

	if err != nil {
		fmt.Fprintf(os.Stderr, "Inquiry error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Response received in %s\n", duration.Truncate(time.Millisecond))
	fmt.Println("===============================================================")
	fmt.Printf(" Response Code: %d\n", resp.ResponseCode)
	if resp.SupplementalInfo != nil {
		fmt.Printf(" Missing      : %v\n", resp.SupplementalInfo.MissingParams)
		fmt.Printf(" Invalid      : %v\n", resp.SupplementalInfo.InvalidParams)
		fmt.Printf(" Unexpected   : %v\n", resp.SupplementalInfo.UnexpectedParams)
	}
	for _, info := range resp.AvailableChannelInfo {
		fmt.Printf(" Channels %v -> maxEirp %v dBm\n", info.ChannelCfi, info.MaxEirp)
	}
	for _, info := range resp.AvailableFrequencyInfo {
		fmt.Printf(" Range [%.1f, %.1f] MHz -> maxPsd %.2f dBm/MHz\n", info.FrequencyRange.LowMHz, info.FrequencyRange.HighMHz, info.MaxPsd)
	}
	fmt.Println("===============================================================")
}

// sendWithRetry POSTs the inquiry with exponential backoff, retrying only
// transport-level failures (the server itself always answers with a
// structured response, never a retryable error).
func sendWithRetry(client *http.Client, server string, req protocol.Request, maxRetries int) (*protocol.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("afc-client: marshal request: %w", err)
	}

	var resp *protocol.Response
	attempt := 0

	operation := func() error {
		attempt++
		httpResp, err := client.Post(server+"/availableSpectrumInquiry", "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("afc-client: attempt %d: %w", attempt, err)
		}
		defer httpResp.Body.Close()

		var decoded protocol.Response
		if err := json.NewDecoder(httpResp.Body).Decode(&decoded); err != nil {
			return backoff.Permanent(fmt.Errorf("afc-client: decode response: %w", err))
		}
		resp = &decoded
		return nil
	}

	backoffPolicy := backoff.NewExponentialBackOff()
	backoffPolicy.MaxElapsedTime = 0
	retryable := backoff.WithMaxRetries(backoffPolicy, uint64(maxRetries))

	if err := backoff.Retry(operation, retryable); err != nil {
		return nil, err
	}
	return resp, nil
}
