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

package main

import (
	"context"
	"sync"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/blizzkit/flurry/casc"
	"github.com/blizzkit/flurry/casc/client"
)

// A datastore tracks one loaded pipeline per product and refreshes it when
// the deployed build changes. Readers take clients out under a read lock;
// loaded clients are themselves immutable, so an update swaps whole
// entries.
type datastore struct {
	region       casc.Region
	userDataRoot string

	// Guards all fields below.
	l sync.RWMutex

	tracking []casc.Product

	clients  map[casc.Product]*client.Client
	versions map[casc.Product]casc.VersionInfo
}

func newDatastore(region casc.Region, userDataRoot string) *datastore {
	return &datastore{
		region:       region,
		userDataRoot: userDataRoot,
		clients:      make(map[casc.Product]*client.Client),
		versions:     make(map[casc.Product]casc.VersionInfo),
	}
}

func (d *datastore) Track(product casc.Product) {
	d.l.Lock()
	defer d.l.Unlock()
	d.tracking = append(d.tracking, product)
}

func (d *datastore) Tracking() []casc.Product {
	d.l.RLock()
	defer d.l.RUnlock()

	out := make([]casc.Product, len(d.tracking))
	copy(out, d.tracking)
	return out
}

// Client returns the loaded pipeline for a product.
func (d *datastore) Client(product casc.Product) (*client.Client, error) {
	d.l.RLock()
	defer d.l.RUnlock()

	c, ok := d.clients[product]
	if !ok {
		return nil, errors.Errorf("no loaded build for %q", product)
	}
	return c, nil
}

// Update runs a single iteration of the datastore's update loop, blocking
// until every tracked product has been attempted. Per-product failures are
// logged and leave the previous build serving.
func (d *datastore) Update(ctx context.Context) error {
	var lastErr error
	for _, product := range d.Tracking() {
		if err := d.update(ctx, product); err != nil {
			glog.Errorf("Error updating %q/%q: %v", product, d.region, err)
			lastErr = err
		}
	}
	return lastErr
}

// update refreshes a single product.
func (d *datastore) update(ctx context.Context, product casc.Product) error {
	glog.Infof("Updating %q/%q", product, d.region)

	c := client.New(d.region, d.userDataRoot)
	c.SetProducts([]casc.Product{product})

	if err := c.Init(ctx); err != nil {
		return errors.Wrap(err, "fetching versions")
	}
	builds := c.Builds()
	if len(builds) == 0 {
		return errors.Errorf("no build for region %q", d.region)
	}
	version := builds[0].Version

	d.l.RLock()
	oldVersion, haveOld := d.versions[product]
	d.l.RUnlock()

	if haveOld {
		if oldVersion.BuildConfig.Equal(version.BuildConfig) {
			glog.Infof("%q/%q: build %v unchanged", product, d.region, version.VersionsName)
			return nil
		}
		glog.Infof("%q/%q: version changed from %v to %v", product, d.region, oldVersion.VersionsName, version.VersionsName)
	}

	if err := c.Load(ctx, 0); err != nil {
		return errors.Wrap(err, "loading build")
	}

	d.l.Lock()
	d.clients[product] = c
	d.versions[product] = version
	d.l.Unlock()

	return nil
}
