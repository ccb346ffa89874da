/*
Copyright 2026 The Flurry Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package client

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/blizzkit/flurry/casc"
	"github.com/blizzkit/flurry/casc/configtable"
)

var (
	suffixServers  = "cdns"
	suffixVersions = "versions"
)

// A Doer issues HTTP requests. Tests substitute a recorded transcript.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// An edge is a selected CDN host together with the product's path prefix on
// it. Every content-addressed URL hangs off one.
type edge struct {
	host string
	path string
}

// A LowLevelClient provides simple wrappers to make basic patch-server and
// CDN operations easier.
//
// Request deadlines are the caller's business, via context; large data
// fetches deliberately carry none.
type LowLevelClient struct {
	Client Doer
}

func (c *LowLevelClient) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)

	cl := c.Client
	if cl == nil {
		cl = http.DefaultClient
	}

	return cl.Do(req)
}

// get issues a content-addressed GET against a CDN edge.
func (c *LowLevelClient) get(ctx context.Context, e edge, contentType casc.ContentType, key casc.Key, suffix string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, cdnURL(e, contentType, key, suffix), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errBadStatus{resp.StatusCode, resp.Status, http.StatusOK}
	}
	return resp, nil
}

// getBytes is get, drained into memory.
func (c *LowLevelClient) getBytes(ctx context.Context, e edge, contentType casc.ContentType, key casc.Key, suffix string) ([]byte, error) {
	resp, err := c.get(ctx, e, contentType, key, suffix)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// getRange issues a ranged GET for size bytes at offset within an archive
// blob. The range is inclusive, per RFC 7233; the server must answer 206.
func (c *LowLevelClient) getRange(ctx context.Context, e edge, archive casc.ArchiveKey, offset, size uint32) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, cdnURL(e, casc.ContentTypeData, archive, ""), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Add("Range", fmt.Sprintf("bytes=%d-%d", offset, uint64(offset)+uint64(size)-1))

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		return nil, errBadStatus{resp.StatusCode, resp.Status, http.StatusPartialContent}
	}
	return io.ReadAll(resp.Body)
}

func (c *LowLevelClient) versions(ctx context.Context, product casc.Product, region casc.Region) ([]casc.VersionInfo, error) {
	req, err := http.NewRequest(http.MethodGet, patchURL(product, region, suffixVersions), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errBadStatus{resp.StatusCode, resp.Status, http.StatusOK}
	}

	var versions []casc.VersionInfo
	d := configtable.NewDecoder(resp.Body)
	for {
		var version casc.VersionInfo
		if err := d.Decode(&version); err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		version.Product = product
		versions = append(versions, version)
	}
	return versions, nil
}

func (c *LowLevelClient) servers(ctx context.Context, product casc.Product, region casc.Region) ([]casc.ServerInfo, error) {
	req, err := http.NewRequest(http.MethodGet, patchURL(product, region, suffixServers), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errBadStatus{resp.StatusCode, resp.Status, http.StatusOK}
	}

	var servers []casc.ServerInfo
	d := configtable.NewDecoder(resp.Body)
	for {
		var server casc.ServerInfo
		if err := d.Decode(&server); err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		servers = append(servers, server)
	}
	return servers, nil
}

func cdnURL(e edge, contentType casc.ContentType, key casc.Key, suffix string) string {
	return fmt.Sprintf("http://%s/%s/%s/%s%s", e.host, e.path, contentType, casc.CDNPath(key), suffix)
}

func patchURL(product casc.Product, region casc.Region, suffix string) string {
	return fmt.Sprintf("http://%s.patch.battle.net:1119/%s/%s", region, product, suffix)
}
