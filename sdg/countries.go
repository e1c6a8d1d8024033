// Copyright 2024 SDG Kit Authors

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sdg

// CountryNames resolves an ISO3 code to a display name. The default
// implementation is a small static table; applications with a richer lookup
// service can install their own on the Session.
type CountryNames interface {
	Name(iso3 string) string
}

type staticNames map[string]string

func (m staticNames) Name(iso3 string) string { return m[iso3] }

// BuiltinCountryNames returns the bundled static lookup. It covers the codes
// used in examples and tests; missing codes resolve to an empty name.
func BuiltinCountryNames() CountryNames {
	return staticNames{
		"AFG": "Afghanistan",
		"AGO": "Angola",
		"ALB": "Albania",
		"ARG": "Argentina",
		"BGD": "Bangladesh",
		"BRA": "Brazil",
		"CHN": "China",
		"COD": "Democratic Republic of the Congo",
		"ETH": "Ethiopia",
		"FRA": "France",
		"GHA": "Ghana",
		"IDN": "Indonesia",
		"IND": "India",
		"KEN": "Kenya",
		"MEX": "Mexico",
		"MLI": "Mali",
		"MWI": "Malawi",
		"NER": "Niger",
		"NGA": "Nigeria",
		"PAK": "Pakistan",
		"PHL": "Philippines",
		"SEN": "Senegal",
		"TZA": "United Republic of Tanzania",
		"UGA": "Uganda",
		"USA": "United States of America",
		"VNM": "Viet Nam",
		"ZAF": "South Africa",
		"ZMB": "Zambia",
		"ZWE": "Zimbabwe",

		"WORLD":      "World",
		"UNICEF_SA":  "South Asia",
		"UNICEF_SSA": "Sub-Saharan Africa",
		"WB_LI":      "Low income",
		"WB_HI":      "High income",
	}
}
