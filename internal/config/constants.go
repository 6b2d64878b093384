package config

import "time"

const (
	AppName = "hudlink"

	// EnvPrefix namespaces environment overrides: HUDLINK_PIPELINE_STATES=fl,ca
	EnvPrefix = "HUDLINK"

	DefaultConfigFile = "hudlink.yaml"
	DefaultEnvFile    = ".env"

	DefaultDataDir   = "data"
	DefaultOutputDir = "hudlink_output"
	DefaultLogFile   = "logs/hudlink.log"

	DefaultWeightTolerance = 1e-6
	DefaultVintageCutover  = 2020
	DefaultFullRecodeYear  = 2023

	DefaultUnitTimeout = 30 * time.Minute
)

// Input file templates. {data_dir}, {state} (lower case) and {year} are substituted.
const (
	DefaultSurveyTemplate        = "{data_dir}/{state}/{state}_ipums_{year}.csv"
	DefaultCrosswalk2012Template = "{data_dir}/{state}/{state}_geocorr_puma_2012.csv"
	DefaultCrosswalk2022Template = "{data_dir}/{state}/{state}_geocorr_puma_2022.csv"
	DefaultIncomeLimitsTemplate  = "{data_dir}/{state}/{state}_income_limits/{state}_{year}_income_limits.csv"
	DefaultProgramsTemplate      = "{data_dir}/{state}/{state}_hud_pic_sub_housing/{state}_hud_hcv_picsubhhds_{year}.csv"
	DefaultIncarcerationTemplate = "{data_dir}/{state}/{state}_incarceration.csv"
)
