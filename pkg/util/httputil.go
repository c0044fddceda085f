package util

import (
	"context"
	"io"
	"net/http"
)

// HTTPGet performs a GET with the given client, bounded by the context.
// @param ctx <context.Context>: request context
// @param url <string>: URL http to call
// @return <int>, <string>, error
func HTTPGet(
	ctx context.Context, client *http.Client,
	url string, header map[string]string,
) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", err
	}

	for key, value := range header {
		req.Header.Set(key, value)
	}

	rs, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer rs.Body.Close()

	bodyBytes, err := io.ReadAll(rs.Body)
	if err != nil {
		return 0, "", err
	}

	return rs.StatusCode, string(bodyBytes), nil
}
