// Package geoserver provides a client for the GeoServer REST API.
package geoserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"assac-admin-go/internal/apperr"
	"assac-admin-go/internal/config"
)

// DefaultSRS is used when a feature type declares no spatial reference.
const DefaultSRS = "EPSG:4326"

// Client talks to one GeoServer instance. It is stateless and safe for
// concurrent use.
type Client struct {
	baseURL  string
	username string
	password string
	httpc    *http.Client
}

// NewClient creates a Client from configuration. Every request carries the
// configured timeout so a hung GeoServer cannot wedge a publish forever.
func NewClient(cfg config.GeoServerConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  cfg.URL + "/rest",
		username: cfg.Username,
		password: cfg.Password,
		httpc:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build geoserver request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", apperr.ErrDownstream, method, path, err)
	}
	return resp, nil
}

// checkStatus drains and closes the body and converts non-2xx statuses into
// taxonomy errors. The upstream detail goes into the error for the logs; the
// handler layer is responsible for suppressing it from end users.
func checkStatus(resp *http.Response, method, path string) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", apperr.ErrNotFound, method, path)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s %s: %s", apperr.ErrDuplicate, method, path, detail)
	default:
		return fmt.Errorf("%w: %s %s: status %d: %s", apperr.ErrDownstream, method, path, resp.StatusCode, detail)
	}
}

// WorkspaceExists checks that the named workspace is present.
func (c *Client) WorkspaceExists(ctx context.Context, workspace string) error {
	resp, err := c.do(ctx, http.MethodGet, "/workspaces/"+url.PathEscape(workspace), nil, "")
	if err != nil {
		return err
	}
	return checkStatus(resp, http.MethodGet, "/workspaces/"+workspace)
}

// DatastoreExists checks that the named vector datastore is present in the
// workspace.
func (c *Client) DatastoreExists(ctx context.Context, workspace, store string) error {
	path := fmt.Sprintf("/workspaces/%s/datastores/%s", url.PathEscape(workspace), url.PathEscape(store))
	resp, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	return checkStatus(resp, http.MethodGet, path)
}

type featureTypeRef struct {
	Name string `json:"name"`
}

type featureTypeList struct {
	FeatureType []featureTypeRef `json:"featureType"`
}

type featureTypesResponse struct {
	// GeoServer returns "" instead of an object when the store is empty,
	// so this must stay a RawMessage.
	FeatureTypes json.RawMessage `json:"featureTypes"`
}

// FeatureTypeExists reports whether a feature type with the given name is
// already registered in the datastore.
func (c *Client) FeatureTypeExists(ctx context.Context, workspace, store, name string) (bool, error) {
	path := fmt.Sprintf("/workspaces/%s/datastores/%s/featuretypes", url.PathEscape(workspace), url.PathEscape(store))
	resp, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusNotFound {
			return false, fmt.Errorf("%w: %s", apperr.ErrNotFound, path)
		}
		return false, fmt.Errorf("%w: GET %s: status %d: %s", apperr.ErrDownstream, path, resp.StatusCode, detail)
	}

	var wrapper featureTypesResponse
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		return false, fmt.Errorf("%w: decode featuretypes: %v", apperr.ErrDownstream, err)
	}
	var list featureTypeList
	if err := json.Unmarshal(wrapper.FeatureTypes, &list); err != nil {
		// empty store: featureTypes == ""
		return false, nil
	}
	for _, ft := range list.FeatureType {
		if ft.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// CreateFeatureType registers a vector layer backed by an existing table in
// the datastore.
func (c *Client) CreateFeatureType(ctx context.Context, workspace, store, name, title string) error {
	if title == "" {
		title = name
	}
	payload := map[string]interface{}{
		"featureType": map[string]string{
			"name":       name,
			"nativeName": name,
			"title":      title,
			"srs":        DefaultSRS,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal featuretype: %w", err)
	}
	path := fmt.Sprintf("/workspaces/%s/datastores/%s/featuretypes", url.PathEscape(workspace), url.PathEscape(store))
	resp, err := c.do(ctx, http.MethodPost, path, bytes.NewReader(body), "application/json")
	if err != nil {
		return err
	}
	return checkStatus(resp, http.MethodPost, path)
}

// UploadCoverage streams a GeoTIFF into a coverage store, creating the store
// if needed. GeoServer keeps its own copy of the file.
func (c *Client) UploadCoverage(ctx context.Context, workspace, store, coverageName string, tiff io.Reader) error {
	path := fmt.Sprintf(
		"/workspaces/%s/coveragestores/%s/file.geotiff?coverageName=%s",
		url.PathEscape(workspace), url.PathEscape(store), url.QueryEscape(coverageName),
	)
	resp, err := c.do(ctx, http.MethodPut, path, tiff, "image/tiff")
	if err != nil {
		return err
	}
	return checkStatus(resp, http.MethodPut, path)
}

// DeleteLayer removes a layer registration. Returns apperr.ErrNotFound if
// the layer does not exist; callers in the delete flow swallow that.
func (c *Client) DeleteLayer(ctx context.Context, name string) error {
	path := "/layers/" + url.PathEscape(name)
	resp, err := c.do(ctx, http.MethodDelete, path, nil, "")
	if err != nil {
		return err
	}
	return checkStatus(resp, http.MethodDelete, path)
}

// DeleteFeatureType removes a feature type and its dependent resources.
func (c *Client) DeleteFeatureType(ctx context.Context, workspace, store, name string) error {
	path := fmt.Sprintf(
		"/workspaces/%s/datastores/%s/featuretypes/%s?recurse=true",
		url.PathEscape(workspace), url.PathEscape(store), url.PathEscape(name),
	)
	resp, err := c.do(ctx, http.MethodDelete, path, nil, "")
	if err != nil {
		return err
	}
	return checkStatus(resp, http.MethodDelete, path)
}

// DeleteCoverageStore removes a coverage store and everything under it.
func (c *Client) DeleteCoverageStore(ctx context.Context, workspace, store string) error {
	path := fmt.Sprintf(
		"/workspaces/%s/coveragestores/%s?recurse=true",
		url.PathEscape(workspace), url.PathEscape(store),
	)
	resp, err := c.do(ctx, http.MethodDelete, path, nil, "")
	if err != nil {
		return err
	}
	return checkStatus(resp, http.MethodDelete, path)
}
