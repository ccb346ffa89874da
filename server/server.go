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

// flurryd serves tracked CASC builds over HTTP: build descriptors as JSON
// and file payloads by file data id, BLTE-decoded on the way out.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/golang/glog"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/blizzkit/flurry/casc"
	"github.com/blizzkit/flurry/casc/client"
)

var (
	trackProductsStr = flag.String("track-products", "wow,wowt", "comma-separated list of products to track")
	region           = flag.String("region", "", "patch server region (default $FLURRY_REGION, else us)")
	userDataRoot     = flag.String("cache-dir", "", "build cache directory (default $FLURRY_CACHE_DIR, else cache)")
	listen           = flag.String("listen", "", "HTTP listen address (default $FLURRY_LISTEN, else :8080)")
	updateEvery      = flag.Duration("update-every", 30*time.Minute, "build refresh interval")
)

// envOr resolves an unset flag from the environment, after godotenv has
// folded .env into it.
func envOr(flagValue, key, fallback string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var ds *datastore

type Program struct {
	VersionInfo struct {
		BuildConfig  string `json:"build_config"`
		CDNConfig    string `json:"cdn_config"`
		BuildID      int    `json:"build_id"`
		VersionsName string `json:"versions_name"`
	} `json:"version_info"`
	RootFiles      int `json:"root_files"`
	ArchiveEntries int `json:"archive_entries"`
}

func programFromClient(c *client.Client) Program {
	var p Program

	b := c.Build()
	p.VersionInfo.BuildConfig = b.Version.BuildConfig.Hex()
	p.VersionInfo.CDNConfig = b.Version.CDNConfig.Hex()
	p.VersionInfo.BuildID = b.Version.BuildID
	p.VersionInfo.VersionsName = b.Version.VersionsName
	p.RootFiles = c.RootCount()
	p.ArchiveEntries = c.Archives().Len()

	return p
}

func annotateHeadersWithClient(h http.Header, c *client.Client) {
	b := c.Build()
	h.Set("Flurry-Build-Config", b.Version.BuildConfig.Hex())
	h.Set("Flurry-Build-ID", fmt.Sprintf("%d", b.Version.BuildID))
	h.Set("Flurry-Version-Name", b.Version.VersionsName)
}

func ProgramsHandler(w http.ResponseWriter, r *http.Request) {
	out := make(map[casc.Product]Program)
	for _, product := range ds.Tracking() {
		c, err := ds.Client(product)
		if err != nil {
			continue
		}
		out[product] = programFromClient(c)
	}

	w.Header().Add("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(out)
}

func ProgramHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	product := casc.Product(vars["product"])

	c, err := ds.Client(product)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	annotateHeadersWithClient(w.Header(), c)

	out := programFromClient(c)
	w.Header().Add("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(out)
}

func FileHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	product := casc.Product(vars["product"])

	c, err := ds.Client(product)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	annotateHeadersWithClient(w.Header(), c)

	id, err := strconv.ParseUint(vars["fileDataID"], 10, 32)
	if err != nil {
		http.Error(w, "bad file data id", http.StatusBadRequest)
		return
	}

	glog.Infof("%s: request file %d", product, id)
	blob, err := c.Fetch(r.Context(), casc.FileDataID(id))
	switch errors.Cause(err) {
	case nil:
	case client.ErrNotFound:
		http.Error(w, "no such file", http.StatusNotFound)
		return
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	calcetag := fmt.Sprintf("\"%s\"", blob.Key.Hex())
	if etag := r.Header.Get("If-None-Match"); etag == calcetag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Flurry-Encoding-Key", blob.Key.Hex())
	w.Header().Set("ETag", calcetag)
	if _, err := io.Copy(w, blob.Open()); err != nil {
		glog.Warningf("%s: streaming file %d: %v", product, id, err)
	}
}

func main() {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		glog.Warningf("Loading .env: %v", err)
	}
	flag.Parse()

	*region = envOr(*region, "FLURRY_REGION", string(casc.DefaultRegion))
	*userDataRoot = envOr(*userDataRoot, "FLURRY_CACHE_DIR", "cache")
	*listen = envOr(*listen, "FLURRY_LISTEN", ":8080")

	ds = newDatastore(casc.Region(*region), *userDataRoot)
	for _, product := range strings.Split(*trackProductsStr, ",") {
		ds.Track(casc.Product(strings.TrimSpace(product)))
	}

	glog.Info("Performing initial datastore update...")
	if err := ds.Update(context.Background()); err != nil {
		glog.Errorf("Initial update: %v", err)
	}
	go func() {
		for range time.Tick(*updateEvery) {
			glog.Info("Performing datastore update")
			if err := ds.Update(context.Background()); err != nil {
				glog.Errorf("Datastore update: %v", err)
			}
		}
	}()

	rtr := mux.NewRouter()
	http.Handle("/", rtr)

	r := rtr.Methods("GET").Subrouter()
	r.HandleFunc("/programs", ProgramsHandler)
	r.HandleFunc("/programs/{product}", ProgramHandler)
	r.Handle("/programs/{product}/files/{fileDataID:[0-9]+}", gziphandler.GzipHandler(http.HandlerFunc(FileHandler)))

	glog.Infof("Listening on %q", *listen)
	glog.Exit(http.ListenAndServe(*listen, nil))
}
