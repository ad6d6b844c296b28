package impact

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lorenzlk/impactreportingapi-sub002/internal/model"
)

// dateFormat is the only timestamp layout the upstream accepts: UTC, second
// precision, literal Z suffix. Sub-second precision or future end dates make
// the upstream return silently empty exports (a documented upstream defect),
// so dates are formatted and bounds-checked here at the boundary.
const dateFormat = "2006-01-02T15:04:05Z"

type catalogResponse struct {
	Reports []catalogEntry `json:"Reports"`
}

type catalogEntry struct {
	ID            string `json:"Id"`
	Name          string `json:"Name"`
	APIAccessible bool   `json:"ApiAccessible"`
}

func (c *httpClient) DiscoverReports(ctx context.Context) ([]model.ReportDescriptor, error) {
	body, err := c.get(ctx, c.endpoint("Reports"))
	if err != nil {
		return nil, eris.Wrap(err, "impact: discover reports")
	}

	var catalog catalogResponse
	if err := json.Unmarshal(body, &catalog); err != nil {
		return nil, &MalformedResponseError{Detail: "catalog is not valid JSON: " + err.Error()}
	}

	var accessible []model.ReportDescriptor
	for _, entry := range catalog.Reports {
		if !entry.APIAccessible {
			continue
		}
		accessible = append(accessible, model.ReportDescriptor{
			ID:         entry.ID,
			Name:       entry.Name,
			Accessible: true,
		})
	}

	if len(accessible) == 0 {
		return nil, ErrEmptyCatalog
	}

	zap.L().Info("discovered accessible reports",
		zap.Int("total", len(catalog.Reports)),
		zap.Int("accessible", len(accessible)),
	)
	return accessible, nil
}

type scheduleResponse struct {
	QueuedURI string `json:"QueuedUri"`
}

func (c *httpClient) ScheduleExport(ctx context.Context, reportID string, params ExportParams) (model.ExportJob, error) {
	if params.DateRange != nil && params.DateRange.End.After(c.now()) {
		return model.ExportJob{}, ErrFutureDateRange
	}

	query := url.Values{}
	if params.SubAID != "" {
		query.Set("SUBAID", params.SubAID)
	}
	if params.DateRange != nil {
		query.Set("START_DATE", params.DateRange.Start.UTC().Format(dateFormat))
		query.Set("END_DATE", params.DateRange.End.UTC().Format(dateFormat))
	}

	requestURL := c.endpoint("ReportExport", url.PathEscape(reportID))
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	body, err := c.get(ctx, requestURL)
	if err != nil {
		return model.ExportJob{}, eris.Wrapf(err, "impact: schedule export %s", reportID)
	}

	var scheduled scheduleResponse
	if err := json.Unmarshal(body, &scheduled); err != nil {
		return model.ExportJob{}, &MalformedResponseError{Detail: "schedule response is not valid JSON: " + err.Error()}
	}

	jobID, err := jobIDFromQueuedURI(scheduled.QueuedURI)
	if err != nil {
		return model.ExportJob{}, err
	}

	zap.L().Info("export scheduled",
		zap.String("report_id", reportID),
		zap.String("job_id", jobID),
	)
	return model.ExportJob{
		ReportID:    reportID,
		JobID:       jobID,
		Status:      model.JobStatusScheduled,
		ScheduledAt: c.now().UTC(),
		DateRange:   params.DateRange,
	}, nil
}

// jobIDFromQueuedURI extracts the job identifier from a queued-resource
// locator of the form ".../Jobs/{jobId}[.json]".
func jobIDFromQueuedURI(queuedURI string) (string, error) {
	if queuedURI == "" {
		return "", &MalformedResponseError{Detail: "schedule response has no QueuedUri"}
	}

	trimmed := strings.TrimSuffix(strings.TrimRight(queuedURI, "/"), ".json")
	segments := strings.Split(trimmed, "/")
	for i := len(segments) - 2; i >= 0; i-- {
		if strings.EqualFold(segments[i], "Jobs") && segments[i+1] != "" {
			return segments[i+1], nil
		}
	}
	return "", &MalformedResponseError{Detail: "cannot parse job id from QueuedUri " + queuedURI}
}

type jobStatusResponse struct {
	Status    string `json:"Status"`
	ResultURI string `json:"ResultUri"`
	Error     string `json:"ErrorMessage"`
}

func (c *httpClient) CheckJobStatus(ctx context.Context, jobID string) (model.ExportJob, error) {
	body, err := c.get(ctx, c.endpoint("Jobs", url.PathEscape(jobID)))
	if err != nil {
		return model.ExportJob{}, eris.Wrapf(err, "impact: job status %s", jobID)
	}

	var status jobStatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return model.ExportJob{}, &MalformedResponseError{Detail: "job status response is not valid JSON: " + err.Error()}
	}

	// The only place upstream status strings are normalized.
	return model.ExportJob{
		JobID:          jobID,
		Status:         model.NormalizeJobStatus(status.Status),
		ResultLocation: status.ResultURI,
		Error:          status.Error,
	}, nil
}

func (c *httpClient) DownloadResult(ctx context.Context, location string) (string, error) {
	requestURL := location
	if strings.HasPrefix(location, "/") {
		requestURL = c.baseURL + location
	}

	start := time.Now()
	body, contentType, err := c.download(ctx, requestURL)
	if err != nil {
		return "", err
	}

	text, err := decodePayload(body, contentType)
	if err != nil {
		return "", err
	}

	zap.L().Info("result downloaded",
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return text, nil
}
