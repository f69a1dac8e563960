package config

import "strings"

// normalizeConfig normalizes configuration values.
func normalizeConfig(c *Config) {
	c.Log.Level = strings.ToLower(c.Log.Level)

	// Region codes are matched against monitor locations, which are lowercase.
	if len(c.Dispatch.Regions) > 0 {
		regions := make(map[string]RegionConfig, len(c.Dispatch.Regions))
		for code, region := range c.Dispatch.Regions {
			region.Endpoint = strings.TrimRight(strings.TrimSpace(region.Endpoint), "/")
			regions[strings.ToLower(strings.TrimSpace(code))] = region
		}
		c.Dispatch.Regions = regions
	}

	c.Annotator.BaseURL = strings.TrimRight(c.Annotator.BaseURL, "/")
}
