package main

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// bindFlag binds a flag to a config key. Only flags the user actually set
// override the config file and environment.
func bindFlag(v *viper.Viper, key string, f *pflag.Flag) {
	if err := v.BindPFlag(key, f); err != nil {
		panic(err)
	}
}

// serveFlags returns the flags of the serve command bound to v.
func serveFlags(v *viper.Viper) *pflag.FlagSet {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.StringP("addr", "a", "", "listen address (default: :8080)")
	fs.String("charts-dir", "", "chart cache directory (default: charts)")
	fs.Bool("charts-in-memory", false, "keep the chart cache in memory")
	fs.Bool("metrics", true, "serve Prometheus metrics at /metrics")
	fs.StringSlice("cors-origin", nil, "allowed CORS origin for /api/ (repeatable)")

	bindFlag(v, "addr", fs.Lookup("addr"))
	bindFlag(v, "charts.dir", fs.Lookup("charts-dir"))
	bindFlag(v, "charts.in_memory", fs.Lookup("charts-in-memory"))
	bindFlag(v, "metrics.enabled", fs.Lookup("metrics"))
	bindFlag(v, "api.cors_origins", fs.Lookup("cors-origin"))
	return fs
}
