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
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

var (
	// ErrUnknownRegion means the configured region has no entry in the
	// product's version or server tables.
	ErrUnknownRegion = errors.New("client: unknown region")

	// ErrUnknownBuild means the build index does not name a build from Init.
	ErrUnknownBuild = errors.New("client: unknown build index")

	// ErrNotLoaded means Fetch was called before Load completed.
	ErrNotLoaded = errors.New("client: build not loaded")

	// ErrNotFound means the requested file data id has no root entry. It is
	// an answer, not a fault: the id simply does not exist in this build.
	ErrNotFound = errors.New("client: no root entry for file data id")

	// ErrBuildInconsistency means the build references a key it does not
	// carry: a root content hash absent from the encoding table. Fatal for
	// the file, not for the pipeline.
	ErrBuildInconsistency = errors.New("client: content hash missing from encoding table")

	// ErrUnindexedEncoding means an encoding key appears in no archive
	// index. Fatal for the file, not for the pipeline.
	ErrUnindexedEncoding = errors.New("client: encoding key missing from archive indexes")
)

type errBadStatus struct {
	statusCode int
	status     string

	wantedStatusCode int
}

func (e errBadStatus) Error() string {
	return fmt.Sprintf("client: server status was \"%d %s\"; wanted \"%d %s\"", e.statusCode, e.status, e.wantedStatusCode, http.StatusText(e.wantedStatusCode))
}
