package stream

import (
	"fmt"
	"net/url"
	"strings"
)

// ResolveStreamURL computes the WebSocket endpoint for a job's live stream.
//
// When an explicit stream base is configured it is joined with
// "/matching-jobs/{jobID}/". Otherwise the endpoint derives from the REST API
// base: same origin, scheme swapped to its ws/wss equivalent, path
// "/ws/matching-jobs/{jobID}/".
func ResolveStreamURL(apiBase, streamBase, jobID string) (string, error) {
	if jobID == "" {
		return "", fmt.Errorf("job id is required")
	}

	if streamBase != "" {
		return strings.TrimRight(streamBase, "/") + "/matching-jobs/" + jobID + "/", nil
	}

	parsed, err := url.Parse(apiBase)
	if err != nil {
		return "", fmt.Errorf("parse API base URL %q: %w", apiBase, err)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("API base URL %q has no host", apiBase)
	}

	scheme := "ws"
	if parsed.Scheme == "https" {
		scheme = "wss"
	}

	endpoint := url.URL{
		Scheme: scheme,
		Host:   parsed.Host,
		Path:   "/ws/matching-jobs/" + jobID + "/",
	}
	return endpoint.String(), nil
}
