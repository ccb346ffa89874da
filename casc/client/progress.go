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

	"github.com/golang/glog"
)

// LoadSteps is the number of Step calls a full Load performs.
const LoadSteps = 10

// Progress receives one notification per pipeline stage during Load. Step is
// also the pipeline's cooperative yield point: returning an error aborts the
// load before the next stage starts.
type Progress interface {
	Step(description string) error
}

// ProgressFunc adapts a function to the Progress interface.
type ProgressFunc func(description string) error

func (f ProgressFunc) Step(description string) error { return f(description) }

// step advances the progress reporter and checks for cancellation. Every
// stage boundary passes through here.
func (c *Client) step(ctx context.Context, description string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.stepN++
	glog.Infof("client: [%d/%d] %s", c.stepN, LoadSteps, description)
	if c.progress == nil {
		return nil
	}
	return c.progress.Step(description)
}
