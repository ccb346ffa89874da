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

package casc

// A Product is a reference to a particular game or game release channel.
//
// Blizzard tracks release, PTR and beta as separate products, even though
// they usually share the same underlying CDN storage.
type Product string

// The World of Warcraft product codes tracked by default.
const (
	ProductWoW           Product = "wow"
	ProductWoWTest       Product = "wowt"
	ProductWoWBeta       Product = "wow_beta"
	ProductWoWClassic    Product = "wow_classic"
	ProductWoWClassicEra Product = "wow_classic_era"
)

// DefaultProducts is the product set a client queries when none is given.
var DefaultProducts = []Product{
	ProductWoW,
	ProductWoWTest,
	ProductWoWBeta,
	ProductWoWClassic,
	ProductWoWClassicEra,
}

// A Region selects a patch server and is used to pick nearby CDNs.
type Region string

// The region codes known at the time of writing.
const (
	RegionUnitedStates Region = "us"
	RegionEurope       Region = "eu"
	RegionChina        Region = "cn"
	RegionKorea        Region = "kr"
	RegionTaiwan       Region = "tw"
	RegionSingapore    Region = "sg"
)

// DefaultRegion is used when no region is configured.
const DefaultRegion = RegionUnitedStates

// A ContentType is a top-level directory of the CDN's static tree.
type ContentType string

// The content types below are believed to be exhaustive.
const (
	ContentTypeConfig ContentType = "config"
	ContentTypeData   ContentType = "data"
	ContentTypePatch  ContentType = "patch"
)
