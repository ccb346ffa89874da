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

// Package client drives the remote CASC resolution pipeline: patch server,
// host selection, configs, archive indexes, encoding and root tables, and
// finally file fetches by file data id, with a per-build disk cache
// interposed at every network boundary.
package client

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/blizzkit/flurry/blte"
	"github.com/blizzkit/flurry/casc"
	"github.com/blizzkit/flurry/casc/archive"
	"github.com/blizzkit/flurry/casc/cache"
	"github.com/blizzkit/flurry/casc/encoding"
	"github.com/blizzkit/flurry/casc/keyvalue"
	"github.com/blizzkit/flurry/casc/ping"
	"github.com/blizzkit/flurry/casc/rootfile"
)

// fastestHost is used to stub out host selection in tests.
var fastestHost = ping.Fastest

const (
	// configTimeout bounds patch-server and config fetches.
	configTimeout = 30 * time.Second

	// indexTimeout bounds a single archive index fetch. Data file fetches
	// are unbounded; they stream until done or cancelled.
	indexTimeout = 60 * time.Second
)

// A Build is one loadable (product, version) pair discovered by Init.
type Build struct {
	Product casc.Product
	Version casc.VersionInfo
}

// A NameMapper resolves a file name to its file data id, typically backed by
// a community listfile. It must be safe for concurrent use.
type NameMapper func(name string) (casc.FileDataID, bool)

// A Client is the pipeline controller. Construct with New, discover builds
// with Init, then Load one; afterwards Fetch may be called concurrently.
//
// All pipeline state is written once during Load and read-only afterwards.
type Client struct {
	llc *LowLevelClient

	region       casc.Region
	products     []casc.Product
	userDataRoot string
	locale       rootfile.LocaleFlag
	progress     Progress
	nameMapper   NameMapper

	builds []Build

	// state for the selected build
	build       *Build
	server      *casc.ServerInfo
	host        string
	buildConfig *casc.BuildConfig
	cdnConfig   *casc.CDNConfig
	archives    *archive.Mapper
	cache       *cache.Cache
	encoding    *encoding.Mapper
	root        map[casc.FileDataID]casc.ContentHash

	stepN int
}

// New creates a Client for the given region. userDataRoot holds the
// per-build caches; builds of every product share it.
func New(region casc.Region, userDataRoot string) *Client {
	return &Client{
		llc:          &LowLevelClient{},
		region:       region,
		products:     casc.DefaultProducts,
		userDataRoot: userDataRoot,
		locale:       rootfile.LocaleEnUS,
	}
}

// SetProducts overrides the product set Init queries.
func (c *Client) SetProducts(products []casc.Product) { c.products = products }

// SetLocale selects the root table locale. The default is enUS.
func (c *Client) SetLocale(locale rootfile.LocaleFlag) { c.locale = locale }

// SetProgress registers a progress reporter for Load.
func (c *Client) SetProgress(p Progress) { c.progress = p }

// SetNameMapper registers a name-to-file-data-id lookup for FetchName.
func (c *Client) SetNameMapper(m NameMapper) { c.nameMapper = m }

// SetHTTPClient overrides the HTTP transport. Tests install a recorded
// transcript here.
func (c *Client) SetHTTPClient(d Doer) { c.llc.Client = d }

// Init populates the build list by fetching the version table of every
// known product in parallel. A product whose fetch fails is skipped with a
// warning; Init fails only if no patch server responded at all.
func (c *Client) Init(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, configTimeout)
	defer cancel()

	versions := make([][]casc.VersionInfo, len(c.products))
	errs := make([]error, len(c.products))

	var g errgroup.Group
	for n, product := range c.products {
		n, product := n, product
		g.Go(func() error {
			versions[n], errs[n] = c.llc.versions(ctx, product, c.region)
			return nil
		})
	}
	g.Wait()

	reached := 0
	c.builds = nil
	for n, product := range c.products {
		if errs[n] != nil {
			glog.Warningf("client: skipping product %s: %v", product, errs[n])
			continue
		}
		reached++
		for _, v := range versions[n] {
			if v.Region != c.region {
				continue
			}
			c.builds = append(c.builds, Build{Product: product, Version: v})
		}
	}
	if reached == 0 {
		for _, err := range errs {
			if err != nil {
				return errors.Wrap(err, "client: no patch server reachable")
			}
		}
	}

	glog.Infof("client: %d builds available for region %s", len(c.builds), c.region)
	return nil
}

// Builds returns the builds discovered by Init, in product order.
func (c *Client) Builds() []Build {
	out := make([]Build, len(c.builds))
	copy(out, c.builds)
	return out
}

func (c *Client) selectBuild(n int) error {
	if len(c.builds) == 0 {
		return errors.Wrapf(ErrUnknownRegion, "client: no builds for region %s", c.region)
	}
	if n < 0 || n >= len(c.builds) {
		return errors.Wrapf(ErrUnknownBuild, "client: build %d of %d", n, len(c.builds))
	}
	b := c.builds[n]
	c.build = &b
	c.stepN = 0
	return nil
}

// Preload selects a build and runs the pipeline through the archive
// indexes: server config, host selection, configs, archives. It does not
// touch the cache or load the encoding or root tables; a local-install
// reader uses this mode when it only needs archive lookups for CDN
// fallback.
func (c *Client) Preload(ctx context.Context, buildIndex int) error {
	if err := c.selectBuild(buildIndex); err != nil {
		return err
	}
	c.cache = nil
	return c.preload(ctx)
}

// Load selects a build and runs the full pipeline: Preload's stages with
// the build cache interposed, then the encoding and root tables. Progress
// is reported in LoadSteps steps.
func (c *Client) Load(ctx context.Context, buildIndex int) error {
	if err := c.selectBuild(buildIndex); err != nil {
		return err
	}

	if err := c.step(ctx, "initializing local cache"); err != nil {
		return err
	}
	c.cache = cache.New(c.userDataRoot, c.build.Version.BuildConfig)
	if err := c.cache.Init(); err != nil {
		return err
	}

	if err := c.preload(ctx); err != nil {
		return err
	}
	if err := c.loadEncoding(ctx); err != nil {
		return err
	}
	if err := c.loadRoot(ctx); err != nil {
		return err
	}

	return c.step(ctx, "build ready")
}

// preload runs the stages shared by Preload and Load against the selected
// build, using c.cache when set.
func (c *Client) preload(ctx context.Context) error {
	version := c.build.Version

	if err := c.step(ctx, "fetching server configuration"); err != nil {
		return err
	}
	sctx, cancel := context.WithTimeout(ctx, configTimeout)
	servers, err := c.llc.servers(sctx, c.build.Product, c.region)
	cancel()
	if err != nil {
		return errors.Wrap(err, "client: downloading server config")
	}
	c.server = nil
	for _, s := range servers {
		if s.Name != c.region {
			continue
		}
		s := s
		c.server = &s
		break
	}
	if c.server == nil {
		return errors.Wrapf(ErrUnknownRegion, "client: no server config for %s", c.region)
	}

	if err := c.step(ctx, "locating fastest server"); err != nil {
		return err
	}
	host, err := fastestHost(ctx, c.server.Hosts)
	if err != nil {
		return errors.Wrap(err, "client: selecting host")
	}
	c.host = host

	if err := c.step(ctx, "fetching build configurations"); err != nil {
		return err
	}
	var buildConfig casc.BuildConfig
	if err := c.fetchConfig(ctx, version.BuildConfig, &buildConfig); err != nil {
		return errors.Wrap(err, "client: build config")
	}
	var cdnConfig casc.CDNConfig
	if err := c.fetchConfig(ctx, version.CDNConfig, &cdnConfig); err != nil {
		return errors.Wrap(err, "client: cdn config")
	}
	if buildConfig.Encoding.EncodingKey.IsZero() {
		return errors.New("client: build config encoding field carries no encoding key")
	}
	c.buildConfig = &buildConfig
	c.cdnConfig = &cdnConfig

	if err := c.step(ctx, "loading archives"); err != nil {
		return err
	}
	mapper, err := archive.NewMapper(ctx, c, cdnConfig.Archives)
	if err != nil {
		return errors.Wrap(err, "client: loading archive indexes")
	}
	c.archives = mapper

	return nil
}

// fetchConfig retrieves and decodes one config blob by its content hash.
// Configs are small and never cached: the cache directory is itself named
// after the build config hash.
func (c *Client) fetchConfig(ctx context.Context, key casc.ContentHash, into interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, configTimeout)
	defer cancel()

	resp, err := c.llc.get(ctx, c.edge(), casc.ContentTypeConfig, key, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return keyvalue.Decode(resp.Body, into)
}

func (c *Client) loadEncoding(ctx context.Context) error {
	if err := c.step(ctx, "loading encoding table"); err != nil {
		return err
	}

	raw, ok := c.cacheGet("", cache.NameEncoding)
	if !ok {
		var err error
		raw, err = c.llc.getBytes(ctx, c.edge(), casc.ContentTypeData, c.buildConfig.Encoding.EncodingKey, "")
		if err != nil {
			return errors.Wrap(err, "client: downloading encoding table")
		}
		c.cacheStore("", cache.NameEncoding, raw)
	}

	if err := c.step(ctx, "parsing encoding table"); err != nil {
		return err
	}
	mapper, err := encoding.NewMapper(blte.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return errors.Wrap(err, "client: parsing encoding table")
	}
	c.encoding = mapper
	glog.Infof("client: encoding table maps %d content hashes", mapper.Len())
	return nil
}

func (c *Client) loadRoot(ctx context.Context) error {
	if err := c.step(ctx, "loading root table"); err != nil {
		return err
	}

	raw, ok := c.cacheGet("", cache.NameRoot)
	if !ok {
		rootKey, err := c.encoding.ToEncodingKey(c.buildConfig.Root)
		if err != nil {
			return errors.Wrapf(ErrBuildInconsistency, "client: root table %s", c.buildConfig.Root.Hex())
		}
		raw, err = c.llc.getBytes(ctx, c.edge(), casc.ContentTypeData, rootKey, "")
		if err != nil {
			return errors.Wrap(err, "client: downloading root table")
		}
		c.cacheStore("", cache.NameRoot, raw)
	}

	if err := c.step(ctx, "parsing root table"); err != nil {
		return err
	}
	root, err := rootfile.Parse(blte.NewReader(bytes.NewReader(raw)), c.locale)
	if err != nil {
		return errors.Wrap(err, "client: parsing root table")
	}
	c.root = root
	glog.Infof("client: root table names %d files", len(root))
	return nil
}

// ArchiveIndex retrieves one archive's raw index, through the cache when one
// is interposed. It implements archive.Fetcher.
func (c *Client) ArchiveIndex(ctx context.Context, key casc.ArchiveKey) ([]byte, error) {
	name := key.Hex() + ".index"
	if b, ok := c.cacheGet(cache.CategoryIndexes, name); ok {
		return b, nil
	}

	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()
	b, err := c.llc.getBytes(ctx, c.edge(), casc.ContentTypeData, key, ".index")
	if err != nil {
		return nil, err
	}
	c.cacheStore(cache.CategoryIndexes, name, b)
	return b, nil
}

// Fetch resolves a file data id to its BLTE-framed payload: root table to
// content hash, encoding table to encoding key, then cache or a ranged GET
// into the containing archive.
//
// Fetch is safe for concurrent use once Load has returned. Concurrent
// fetches of the same key may race to the CDN; both write identical bytes,
// so the cache stays coherent.
func (c *Client) Fetch(ctx context.Context, id casc.FileDataID) (*Blob, error) {
	if c.root == nil || c.encoding == nil {
		return nil, ErrNotLoaded
	}

	contentHash, ok := c.root[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "client: file data id %d", id)
	}

	key, err := c.encoding.ToEncodingKey(contentHash)
	if err != nil {
		return nil, errors.Wrapf(ErrBuildInconsistency, "client: file data id %d -> %s", id, contentHash.Hex())
	}

	if b, ok := c.cacheGet(cache.CategoryData, key.Hex()); ok {
		return &Blob{Key: key, Data: b}, nil
	}

	entry, ok := c.archives.Map(key)
	if !ok {
		return nil, errors.Wrapf(ErrUnindexedEncoding, "client: file data id %d -> %s", id, key.Hex())
	}

	data, err := c.llc.getRange(ctx, c.edge(), entry.Archive, entry.Offset, entry.Size)
	if err != nil {
		return nil, errors.Wrapf(err, "client: fetching %s", key.Hex())
	}
	c.cacheStore(cache.CategoryData, key.Hex(), data)

	return &Blob{Key: key, Data: data}, nil
}

// FetchName resolves a file by name through the registered NameMapper.
func (c *Client) FetchName(ctx context.Context, name string) (*Blob, error) {
	if c.nameMapper == nil {
		return nil, errors.New("client: no name mapper registered")
	}
	id, ok := c.nameMapper(name)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "client: name %q", name)
	}
	return c.Fetch(ctx, id)
}

// Open is Fetch followed by BLTE decoding, for callers that only want the
// payload.
func (c *Client) Open(ctx context.Context, id casc.FileDataID) (io.Reader, error) {
	b, err := c.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	return b.Open(), nil
}

// Build returns the currently selected build, or nil before Preload/Load.
func (c *Client) Build() *Build {
	return c.build
}

// BuildConfig returns the selected build's configuration after Preload.
func (c *Client) BuildConfig() *casc.BuildConfig {
	return c.buildConfig
}

// CDNConfig returns the selected build's CDN configuration after Preload.
func (c *Client) CDNConfig() *casc.CDNConfig {
	return c.cdnConfig
}

// Archives returns the loaded archive mapper after Preload.
func (c *Client) Archives() *archive.Mapper {
	return c.archives
}

// RootCount returns the number of root entries after Load.
func (c *Client) RootCount() int {
	return len(c.root)
}

func (c *Client) edge() edge {
	return edge{host: c.host, path: c.server.Path}
}

func (c *Client) cacheGet(category, name string) ([]byte, bool) {
	if c.cache == nil {
		return nil, false
	}
	return c.cache.Get(category, name)
}

// cacheStore is fire-and-forget: a failed store is worth a warning, never a
// failed fetch. The next request re-fetches instead.
func (c *Client) cacheStore(category, name string, b []byte) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Store(category, name, b); err != nil {
		glog.Warningf("client: caching %s/%s: %v", category, name, err)
	}
}
