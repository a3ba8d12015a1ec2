package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/nicholasyager/dbt-loom/pkg/core"
)

const (
	// DbtCloudTokenEnv names the environment variable holding the API token.
	DbtCloudTokenEnv = "DBT_CLOUD_API_TOKEN"

	// DefaultDbtCloudEndpoint is the administrative API base URL.
	DefaultDbtCloudEndpoint = "https://cloud.getdbt.com/api/v2"

	// dbtCloudRunSuccess is the run status code for a successful run.
	dbtCloudRunSuccess = 10
)

// DbtCloudBackend fetches the manifest of the latest successful run of a
// dbt Cloud job.
type DbtCloudBackend struct {
	getter *httpGetter
	getenv func(string) string
	logger *slog.Logger
}

// NewDbtCloudBackend creates a DbtCloudBackend. A nil client uses a default client.
func NewDbtCloudBackend(client *http.Client, logger *slog.Logger) *DbtCloudBackend {
	return &DbtCloudBackend{
		getter: newHTTPGetter(client),
		getenv: os.Getenv,
		logger: loggerOrDiscard(logger),
	}
}

// Fetch resolves the latest successful run for the job and downloads its
// manifest artifact.
func (b *DbtCloudBackend) Fetch(ctx context.Context, src core.SourceConfig) (core.Document, error) {
	cfg, err := sourceAs[core.DbtCloudConfig](src)
	if err != nil {
		return nil, err
	}

	token := cfg.Token
	if token == "" {
		token = b.getenv(DbtCloudTokenEnv)
	}
	if token == "" {
		return nil, &core.ConfigurationError{
			Message: "a dbt Cloud token is required, set " + DbtCloudTokenEnv,
			Err:     core.ErrMissingCredential,
		}
	}

	endpoint := strings.TrimRight(cfg.APIEndpoint, "/")
	if endpoint == "" {
		endpoint = DefaultDbtCloudEndpoint
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("Content-Type", "application/json")

	runID, err := b.latestRunID(ctx, endpoint, cfg, header)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	if cfg.Step > 0 {
		q.Set("step", strconv.Itoa(cfg.Step))
	}
	artifactURL := fmt.Sprintf("%s/accounts/%d/runs/%s/artifacts/manifest.json", endpoint, cfg.AccountID, runID)
	if len(q) > 0 {
		artifactURL += "?" + q.Encode()
	}

	b.logger.Debug("fetching dbt Cloud manifest artifact", "url", artifactURL)

	resp, err := b.getter.get(ctx, artifactURL, header)
	if err != nil {
		return nil, core.NewLoadError("dbt_cloud", cfg.Object(), statusReason(err), err)
	}
	defer func() { _ = resp.Body.Close() }()

	return decodeDocument("dbt_cloud", cfg.Object(), b.getter.body(resp), "")
}

// latestRunID queries the runs endpoint for the most recent successful run.
func (b *DbtCloudBackend) latestRunID(ctx context.Context, endpoint string, cfg core.DbtCloudConfig, header http.Header) (string, error) {
	q := url.Values{}
	q.Set("job_definition_id", strconv.FormatInt(cfg.JobID, 10))
	q.Set("status", strconv.Itoa(dbtCloudRunSuccess))
	q.Set("order_by", "-finished_at")
	q.Set("limit", "1")
	runsURL := fmt.Sprintf("%s/accounts/%d/runs/?%s", endpoint, cfg.AccountID, q.Encode())

	b.logger.Debug("querying dbt Cloud runs", "url", runsURL)

	resp, err := b.getter.get(ctx, runsURL, header)
	if err != nil {
		return "", core.NewLoadError("dbt_cloud", cfg.Object(), statusReason(err), err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(b.getter.body(resp))
	if err != nil {
		reason := core.ErrTransport
		if errors.Is(err, ErrResponseTooLarge) {
			reason = core.ErrMalformedPayload
		}
		return "", core.NewLoadError("dbt_cloud", cfg.Object(), reason, err)
	}
	if !gjson.ValidBytes(body) {
		return "", core.NewLoadError("dbt_cloud", cfg.Object(), core.ErrMalformedPayload,
			fmt.Errorf("runs response is not valid JSON"))
	}

	id := gjson.GetBytes(body, "data.0.id")
	if !id.Exists() || id.String() == "" {
		return "", core.NewLoadError("dbt_cloud", cfg.Object(), core.ErrEmptyResult,
			fmt.Errorf("no successful runs found for job %d", cfg.JobID))
	}
	return id.String(), nil
}
