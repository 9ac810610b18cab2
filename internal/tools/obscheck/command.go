package obscheck

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/evehealth/eve-auth-service/internal/tools/common"
	"github.com/evehealth/eve-auth-service/internal/tools/ui"
)

type options struct {
	grafanaURL string
	apiToken   string
	metric     string
	window     time.Duration
	ci         bool
	timeout    time.Duration
}

// NewRootCommand verifies the observability pipeline end to end: Grafana is
// reachable and a recent exemplar links a service metric to a trace.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "obscheck",
		Short:         "Check the metrics-to-traces pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.grafanaURL, "grafana-url", "http://localhost:3000", "Grafana base URL")
	root.PersistentFlags().StringVar(&opts.apiToken, "api-token", "", "Grafana API token")
	root.PersistentFlags().StringVar(&opts.metric, "metric", "auth_events_total", "metric to look for exemplars on")
	root.PersistentFlags().DurationVar(&opts.window, "window", 5*time.Minute, "how far back to look for exemplars")
	root.PersistentFlags().BoolVar(&opts.ci, "ci", false, "print a machine-readable JSON result instead of the interactive UI")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "per-command timeout in ci mode")

	root.AddCommand(newRunCommand(opts))
	return root
}

func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline check",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(opts, "obscheck run", func(ctx context.Context) ([]string, error) {
				if _, err := grafanaGET(ctx, *opts, "/api/health"); err != nil {
					return nil, fmt.Errorf("grafana health: %w", err)
				}
				details := []string{"grafana reachable"}

				traceID, err := fetchTraceIDFromExemplar(ctx, *opts, time.Now().Add(-opts.window))
				if err != nil {
					return details, err
				}
				details = append(details, "exemplar trace "+traceID)
				return details, nil
			})
			return err
		},
	}
}

func run(opts *options, title string, action func(context.Context) ([]string, error)) ([]string, error) {
	if opts.ci {
		ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
		defer cancel()
		details, err := action(ctx)
		common.PrintCIResult(err == nil, title, details, err)
		return details, err
	}
	return ui.Run(title, action)
}

func grafanaGET(ctx context.Context, opts options, path string) ([]byte, error) {
	base, err := url.Parse(opts.grafanaURL)
	if err != nil {
		return nil, fmt.Errorf("parse grafana url: %w", err)
	}
	target := strings.TrimSuffix(base.String(), "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if opts.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+opts.apiToken)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("grafana returned %d for %s", resp.StatusCode, path)
	}
	return body, nil
}

type exemplarResponse struct {
	Data []struct {
		Exemplars []struct {
			Timestamp int64             `json:"timestamp"`
			Labels    map[string]string `json:"labels"`
		} `json:"exemplars"`
	} `json:"data"`
}

// fetchTraceIDFromExemplar returns the trace id of the newest exemplar on the
// configured metric that is not older than since.
func fetchTraceIDFromExemplar(ctx context.Context, opts options, since time.Time) (string, error) {
	query := url.Values{}
	query.Set("query", opts.metric)
	query.Set("start", fmt.Sprintf("%d", since.Unix()))
	query.Set("end", fmt.Sprintf("%d", time.Now().Unix()))

	body, err := grafanaGET(ctx, opts, "/api/datasources/proxy/1/api/v1/query_exemplars?"+query.Encode())
	if err != nil {
		return "", err
	}

	var parsed exemplarResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parse exemplar response: %w", err)
	}

	var best string
	var bestAt time.Time
	for _, series := range parsed.Data {
		for _, ex := range series.Exemplars {
			at := time.Unix(ex.Timestamp, 0)
			if at.Before(since) {
				continue
			}
			traceID := ex.Labels["trace_id"]
			if traceID == "" {
				continue
			}
			if at.After(bestAt) {
				best = traceID
				bestAt = at
			}
		}
	}
	if best == "" {
		return "", fmt.Errorf("no trace exemplar on %s within %s", opts.metric, opts.window)
	}
	return best, nil
}
