// Package main provides a minimal healthcheck binary for the forms server
// container. It checks a readiness URL and exits 0 when the server reports
// ready, or 1 otherwise, listing the components that are not up.
//
// Usage: healthcheck [-timeout 5s] [url]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
)

const defaultURL = "http://localhost:8080/readyz"

func main() {
	timeout := flag.Duration("timeout", 5*time.Second, "Request timeout")
	flag.Parse()

	url := defaultURL
	if flag.NArg() > 0 {
		url = flag.Arg(0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := checkReady(ctx, http.DefaultClient, url); err != nil {
		fmt.Fprintf(os.Stderr, "healthcheck failed: %v\n", err)
		os.Exit(1)
	}
}

// readyBody is the subset of the /readyz payload the check reports on.
type readyBody struct {
	Status     string                       `json:"status"`
	Components map[string]map[string]string `json:"components"`
}

// checkReady succeeds on any 2xx status. On failure the components that report
// "down", "pending" or "not_configured" are named in the error.
func checkReady(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var body readyBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(raw, &body) != nil || len(body.Components) == 0 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	var failing []string
	for name, c := range body.Components {
		switch c["status"] {
		case "down", "pending", "not_configured":
			failing = append(failing, name+"="+c["status"])
		}
	}
	sort.Strings(failing)
	return fmt.Errorf("status %d: %s", resp.StatusCode, strings.Join(failing, ", "))
}
