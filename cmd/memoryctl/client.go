package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// client is a thin JSON client for the memory service.
type client struct {
	r *resty.Client
}

func newClient(baseURL string, timeoutSeconds int) *client {
	r := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if timeoutSeconds > 0 {
		r.SetTimeout(time.Duration(timeoutSeconds) * time.Second)
	}
	return &client{r: r}
}

func (c *client) get(path string, query url.Values) ([]byte, error) {
	req := c.r.R()
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}
	return check(req.Get(path))
}

func (c *client) post(path string, body any) ([]byte, error) {
	req := c.r.R()
	if body != nil {
		req.SetBody(body)
	}
	return check(req.Post(path))
}

func check(resp *resty.Response, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return resp.Body(), nil
}

// printJSON indents data when it is valid JSON and copies it verbatim otherwise.
func printJSON(out io.Writer, data []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		_, err = out.Write(data)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(out)
	return err
}
