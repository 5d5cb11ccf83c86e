package graph

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Site identifies a SharePoint site.
type Site struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	WebURL string `json:"webUrl"`
}

// DriveItem is a file or folder in a site's document library.
type DriveItem struct {
	ID                   string          `json:"id"`
	Name                 string          `json:"name"`
	WebURL               string          `json:"webUrl"`
	Size                 int64           `json:"size"`
	LastModifiedDateTime string          `json:"lastModifiedDateTime"`
	File                 *map[string]any `json:"file,omitempty"`
	Folder               *map[string]any `json:"folder,omitempty"`
}

// IsFolder reports whether the item is a folder.
func (d DriveItem) IsFolder() bool { return d.Folder != nil }

// SiteByURL resolves a site URL ("https://host/sites/name") to its site id.
func (c *Client) SiteByURL(ctx context.Context, token, siteURL string) (Site, error) {
	parsed, err := url.Parse(siteURL)
	if err != nil {
		return Site{}, fmt.Errorf("parse site url %q: %w", siteURL, err)
	}
	sitePath := strings.TrimRight(parsed.Path, "/")
	raw, err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/sites/%s:%s", parsed.Host, sitePath), token, nil, "")
	if err != nil {
		return Site{}, err
	}
	return decode[Site](raw, "resolve site")
}

// DriveRoot fetches the root folder of the site's default document library.
func (c *Client) DriveRoot(ctx context.Context, token, siteID string) (DriveItem, error) {
	raw, err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/sites/%s/drive/root", siteID), token, nil, "")
	if err != nil {
		return DriveItem{}, err
	}
	return decode[DriveItem](raw, "drive root")
}

// ItemByPath fetches a drive item by its path relative to the drive root.
// Returns a 404 StatusError when the item does not exist.
func (c *Client) ItemByPath(ctx context.Context, token, siteID, path string) (DriveItem, error) {
	raw, err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/sites/%s/drive/root:/%s", siteID, path), token, nil, "")
	if err != nil {
		return DriveItem{}, err
	}
	return decode[DriveItem](raw, "item by path")
}

// CreateFolder creates a folder under the given parent item. The conflict
// behavior is "fail" so an existing folder surfaces as a 409 for the
// reconciliation layer.
func (c *Client) CreateFolder(ctx context.Context, token, siteID, parentID, name string) (DriveItem, error) {
	raw, err := c.Do(ctx, http.MethodPost, fmt.Sprintf("/sites/%s/drive/items/%s/children", siteID, parentID), token, map[string]any{
		"name":   name,
		"folder": map[string]any{},
		"@microsoft.graph.conflictBehavior": "fail",
	}, "")
	if err != nil {
		return DriveItem{}, err
	}
	return decode[DriveItem](raw, "create folder")
}

// UploadFile uploads raw bytes as a file inside the given folder.
func (c *Client) UploadFile(ctx context.Context, token, siteID, folderID, filename string, data []byte) (DriveItem, error) {
	endpoint := fmt.Sprintf("/sites/%s/drive/items/%s:/%s:/content", siteID, folderID, url.PathEscape(filename))
	raw, err := c.DoBytes(ctx, http.MethodPut, endpoint, token, data, "application/octet-stream")
	if err != nil {
		return DriveItem{}, err
	}
	return decode[DriveItem](raw, "upload file")
}

// ListChildren lists files and folders under folderPath (drive root when
// empty), following pagination.
func (c *Client) ListChildren(ctx context.Context, token, siteID, folderPath string) ([]DriveItem, error) {
	const selectFields = "name,size,file,folder,webUrl,lastModifiedDateTime,createdBy"
	var endpoint string
	if folderPath != "" {
		endpoint = fmt.Sprintf("/sites/%s/drive/root:/%s:/children?$select=%s&$top=100", siteID, folderPath, selectFields)
	} else {
		endpoint = fmt.Sprintf("/sites/%s/drive/root/children?$select=%s&$top=100", siteID, selectFields)
	}

	var items []DriveItem
	for endpoint != "" {
		raw, err := c.Do(ctx, http.MethodGet, endpoint, token, nil, "")
		if err != nil {
			return nil, err
		}
		page, err := decode[struct {
			Value    []DriveItem `json:"value"`
			NextLink string      `json:"@odata.nextLink"`
		}](raw, "list children")
		if err != nil {
			return nil, err
		}
		items = append(items, page.Value...)
		endpoint = c.nextEndpoint(page.NextLink)
	}
	return items, nil
}
