// Package config loads the gateway configuration from a TOML file.
//
// Every field has a default, so an empty file is a valid configuration
// except for the backend URL, which is required. Durations are written as
// Go duration strings:
//
//	[server]
//	listen = ":8090"
//
//	[backend]
//	url = "http://127.0.0.1:32400"
//	token = "..."
//
//	[cache]
//	match_lifetime = "6h"
//
//	[executor]
//	max_parallel = 4
//
//	[executor.domains."api.example.com"]
//	max_parallel = 1
//	occasional_delay = { every = 10, duration = "2s", reset_after_idle = "30s" }
//
//	[filters.order]
//	relatedHubs = ["catalog", "fallback"]
//
//	[[sources.peer]]
//	slug = "friend"
//	url = "http://friend.example.com:32400"
//
// Executor policies are overlays: unset fields inherit the built-in
// defaults, and per-domain policies inherit the top-level [executor] policy.
package config
