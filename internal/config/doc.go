// Package config loads hudlink configuration.
//
// Values are layered, later sources overriding earlier ones:
//
//  1. Default()
//  2. the YAML file (hudlink.yaml)
//  3. a .env file, which only fills variables not already set
//  4. HUDLINK_* environment variables
//
// Command line flags are applied by the caller on the returned Config before
// calling Validate. Input file locations are templates resolved per state and
// year by PathsConfig.Inputs.
package config
