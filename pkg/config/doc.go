// Package config loads typed configuration structs from environment
// variables (github.com/caarlos0/env) with optional .env file support
// (github.com/joho/godotenv).
//
//	var cfg tenantdb.Config
//	config.MustLoad(&cfg)
package config
