package impact

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/lorenzlk/impactreportingapi-sub002/internal/resilience"
)

// download fetches the raw result payload. Unlike the JSON endpoints it
// accepts any 200 body and reports failures as *DownloadError.
func (c *httpClient) download(ctx context.Context, requestURL string) (body []byte, contentType string, err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", eris.Wrap(err, "impact: rate limiter")
	}

	type payload struct {
		body        []byte
		contentType string
	}

	result, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (payload, error) {
		if !c.breaker.CanExecute() {
			return payload{}, resilience.ErrCircuitOpen
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return payload{}, eris.Wrap(err, "impact: create download request")
		}
		req.SetBasicAuth(c.accountSID, c.authToken)

		resp, err := c.http.Do(req)
		if err != nil {
			c.breaker.RecordFailure()
			return payload{}, resilience.NewTransientError(eris.Wrap(err, "impact: download transport"), 0)
		}

		data, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			c.breaker.RecordFailure()
			return payload{}, resilience.NewTransientError(eris.Wrap(readErr, "impact: read download"), resp.StatusCode)
		}

		if resp.StatusCode != http.StatusOK {
			c.breaker.RecordFailure()
			return payload{}, resilience.WrapStatus(&DownloadError{StatusCode: resp.StatusCode}, resp.StatusCode)
		}

		c.breaker.RecordSuccess()
		return payload{body: data, contentType: resp.Header.Get("Content-Type")}, nil
	})
	if err != nil {
		return nil, "", err
	}
	return result.body, result.contentType, nil
}

// decodePayload converts a downloaded body to UTF-8, honoring the charset
// declared in the Content-Type header. A UTF-8 BOM is stripped either way.
func decodePayload(body []byte, contentType string) (string, error) {
	charset := ""
	if contentType != "" {
		if _, params, err := mime.ParseMediaType(contentType); err == nil {
			charset = params["charset"]
		}
	}

	if charset != "" && !strings.EqualFold(charset, "utf-8") {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return "", eris.Wrapf(err, "impact: unknown charset %q", charset)
		}
		decoded, err := enc.NewDecoder().Bytes(body)
		if err != nil {
			return "", eris.Wrapf(err, "impact: decode charset %q", charset)
		}
		body = decoded
	}

	body = bytes.TrimPrefix(body, []byte{0xEF, 0xBB, 0xBF})
	return string(body), nil
}

// ParseDelimited splits a delimited result payload into a header row and
// data rows. Variable field counts are tolerated; blank trailing lines are
// dropped by the reader.
func ParseDelimited(text string) (headers []string, rows [][]string, err error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	all, err := reader.ReadAll()
	if err != nil {
		return nil, nil, eris.Wrap(err, "impact: parse delimited result")
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	return all[0], all[1:], nil
}
