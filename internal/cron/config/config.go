package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Account sync sweep. When empty the schedule is derived from
	// SYNC_INTERVAL_MINUTES instead.
	CronScheduleSyncAccounts string `env:"CRON_SCHEDULE_SYNC_ACCOUNTS" envDefault:""`
}
