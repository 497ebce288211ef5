// Package config loads the YAML configuration of a pathq coordinator.
//
// A configuration file sets the endpoint cooldown, the default resolve
// policy, the health tracker window, the query syntax tokens and the
// locations of the endpoint catalog, the capability requirements table, the
// history store and the variable script. Telemetry settings live under the
// telemetry key.
//
//	cooldown: 5m
//	resolve:
//	  mode: retry_or_use_previous
//	  retry_amount: 3
//	  retry_delay: 5s
//	health:
//	  window_size: 20
//	  reliable_cutoff: 0.1
//	  issue_decay: 5m
//	  meaningful_request_cutoff: 0.25
//	requirements:
//	  path: requirements.yaml
//	  watch: true
//	store:
//	  path: pathq.db
//
// Keys left out keep the values of Default. Unknown keys are rejected.
package config
