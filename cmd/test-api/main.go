// Package main is a smoke-test utility that verifies the backend's HTTP API is
// reachable and returning valid responses. It hits the health endpoint and the
// public book listing and prints the status code and response body, making it
// useful for quick post-deployment checks without needing external tooling
// like curl or a full integration test suite.
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
)

func main() {
	base := "http://localhost:8080"
	if len(os.Args) > 1 {
		base = os.Args[1]
	}

	for _, path := range []string{"/health", "/api/v1/books?limit=1"} {
		resp, err := http.Get(base + path)
		if err != nil {
			fmt.Printf("GET %s: %v\n", path, err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			fmt.Printf("GET %s: reading body: %v\n", path, err)
			continue
		}

		fmt.Printf("GET %s: %d\n%s\n", path, resp.StatusCode, string(body))
	}
}
