package main

import "github.com/spf13/viper"

func initViperDefaults() {
	viper.SetDefault("state.dir", "~/.glaeubiger-sync")
	viper.SetDefault("records.db_path", "")

	viper.SetDefault("threads.base_url", "")
	viper.SetDefault("threads.api_token", "")
	viper.SetDefault("threads.timeout_seconds", 30)

	viper.SetDefault("llm.base_url", "")
	viper.SetDefault("llm.api_key", "")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.timeout_seconds", 60)

	viper.SetDefault("polling.interval_minutes", 1)

	viper.SetDefault("outreach.timeout_days", 14)
	viper.SetDefault("outreach.send_delay_seconds", 3)
	viper.SetDefault("outreach.sweep_interval_hours", 24)

	viper.SetDefault("extraction.confidence_threshold", 0.6)
	viper.SetDefault("extraction.primary_threshold", 0.7)
	viper.SetDefault("extraction.patterns_file", "")
}
