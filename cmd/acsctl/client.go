package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

// apiClient talks to the acsd HTTP API
type apiClient struct {
	base   string
	apiKey string
	http   *http.Client
}

func newAPIClient(g *globalOptions) *apiClient {
	return &apiClient{
		base:   strings.TrimSuffix(g.endpoint, "/"),
		apiKey: g.apiKey,
		http:   &http.Client{Timeout: g.timeout},
	}
}

// do sends the request and returns the body; non-2xx answers become errors
// carrying the server's error message
func (c *apiClient) do(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to acsd failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		var apiErr struct {
			Error   string `json:"error"`
			Details string `json:"details"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			if apiErr.Details != "" {
				return nil, fmt.Errorf("%s: %s (HTTP %d)", apiErr.Error, apiErr.Details, resp.StatusCode)
			}
			return nil, fmt.Errorf("%s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}
		return nil, fmt.Errorf("acsd returned HTTP %d", resp.StatusCode)
	}
	return body, nil
}

func writeIndented(out io.Writer, body []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		_, werr := out.Write(body)
		return werr
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(out)
	return err
}

func newStatusCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status [radio]",
		Short: "Show managed radios, or one radio with its last outcome",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/radios"
			if len(args) == 1 {
				path += "/" + url.PathEscape(args[0])
			}
			body, err := newAPIClient(g).do(cmd.Context(), http.MethodGet, path)
			if err != nil {
				return err
			}
			return writeIndented(cmd.OutOrStdout(), body)
		},
	}
}

func newSelectCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "select <radio>",
		Short: "Start a channel selection cycle on a radio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/radios/" + url.PathEscape(args[0]) + "/select"
			body, err := newAPIClient(g).do(cmd.Context(), http.MethodPost, path)
			if err != nil {
				return err
			}

			var resp struct {
				Radio  string `json:"radio"`
				Status string `json:"status"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				return fmt.Errorf("unexpected response: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", resp.Radio, resp.Status)
			return nil
		},
	}
}
