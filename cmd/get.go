package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/evegate/internal/esi"
	"github.com/teemow/evegate/internal/logging"
)

func newGetCmd() *cobra.Command {
	var (
		characterID int64
		allPages    bool
		noCache     bool
		params      []string
	)

	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Issue a GET request against the EVE API",
		Long: `Issue a GET request against an API path and print the JSON response.
Paths are relative to the configured base URL, for example
markets/prices/ or characters/2119654977/assets/.

Authenticated endpoints need --character and a prior 'evegate login'.
Responses are cached on disk and revalidated with ETags; --no-cache
forces a fresh fetch.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseParams(params)
			if err != nil {
				return err
			}
			return runGet(cmd.Context(), args[0], values, characterID, allPages, noCache)
		},
	}

	cmd.Flags().Int64Var(&characterID, "character", 0, "Character ID for authenticated endpoints")
	cmd.Flags().BoolVar(&allPages, "all-pages", false, "Follow pagination and merge all pages into one array")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the response cache")
	cmd.Flags().StringArrayVar(&params, "param", nil, "Query parameter as key=value (repeatable)")

	return cmd
}

// parseParams converts repeated key=value flags into query parameters.
func parseParams(pairs []string) (url.Values, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	values := url.Values{}
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", p)
		}
		values.Add(key, value)
	}
	return values, nil
}

func runGet(ctx context.Context, path string, params url.Values, characterID int64, allPages, noCache bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	client, err := newUpstreamClient(ctx, cfg, logger, clientOptions{loadSpec: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("client shutdown", logging.Err(err))
		}
	}()

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	if allPages {
		opt := &esi.PageOptions{
			Params:      params,
			UseCache:    !noCache,
			CharacterID: characterID,
		}
		// Array pages merge element-wise; cursor payloads are objects
		// and stay whole.
		merged := []json.RawMessage{}
		for page, err := range client.Pages(ctx, http.MethodGet, path, opt) {
			if err != nil {
				return err
			}
			var elems []json.RawMessage
			if err := json.Unmarshal(page, &elems); err != nil {
				elems = []json.RawMessage{page}
			}
			merged = append(merged, elems...)
		}
		return printJSON(os.Stdout, merged)
	}

	opt := &esi.RequestOptions{
		Params:      params,
		UseCache:    !noCache,
		CharacterID: characterID,
	}
	resp, err := client.Request(ctx, http.MethodGet, path, opt)
	if err != nil {
		return err
	}
	return printRawJSON(os.Stdout, resp.Data)
}

// printRawJSON re-indents a raw JSON payload for the terminal. Payloads
// that are not valid JSON are printed verbatim.
func printRawJSON(w io.Writer, data []byte) error {
	if len(data) == 0 {
		_, err := fmt.Fprintln(w, "null")
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		_, err := fmt.Fprintln(w, string(data))
		return err
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}
