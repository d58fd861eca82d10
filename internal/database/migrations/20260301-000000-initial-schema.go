package migrations

func init() {
	Register(Migration{
		Timestamp:   "20260301-000000",
		Description: "Initial schema: billing configurations, seat change log, roster, flags",
		Up: []string{
			// One billing configuration per billable entity (team or org).
			`CREATE TABLE IF NOT EXISTS billing_configurations (
				entity_id INTEGER PRIMARY KEY,
				billing_model TEXT NOT NULL,
				billing_period TEXT,
				subscription_id TEXT NOT NULL DEFAULT '',
				subscription_item_id TEXT NOT NULL DEFAULT '',
				customer_id TEXT NOT NULL DEFAULT '',
				paid_seats INTEGER,
				price_per_seat_usd REAL NOT NULL DEFAULT 0,
				high_water_mark INTEGER,
				high_water_mark_period_start TEXT,
				subscription_start TEXT,
				trial_ends_at TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			// A subscription id identifies at most one configuration.
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_billing_config_subscription
				ON billing_configurations(subscription_id) WHERE subscription_id != ''`,

			// Append-only seat change audit log.
			`CREATE TABLE IF NOT EXISTS seat_change_log (
				id TEXT PRIMARY KEY,
				entity_id INTEGER NOT NULL,
				change_type TEXT NOT NULL,
				seat_count INTEGER NOT NULL DEFAULT 1,
				actor_user_id INTEGER,
				subject_user_id INTEGER,
				month_key TEXT NOT NULL,
				operation_id TEXT,
				processed INTEGER NOT NULL DEFAULT 0,
				proration_id TEXT,
				created_at TEXT NOT NULL
			)`,
			// Idempotency: retried operations must not create a second row.
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_seat_change_operation
				ON seat_change_log(entity_id, operation_id) WHERE operation_id IS NOT NULL`,
			`CREATE INDEX IF NOT EXISTS idx_seat_change_entity_month
				ON seat_change_log(entity_id, month_key)`,
			`CREATE INDEX IF NOT EXISTS idx_seat_change_unprocessed
				ON seat_change_log(processed, month_key)`,

			// Roster shim: teams and their memberships.
			`CREATE TABLE IF NOT EXISTS teams (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL,
				parent_org_id INTEGER,
				created_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS memberships (
				entity_id INTEGER NOT NULL,
				user_id INTEGER NOT NULL,
				created_at TEXT NOT NULL,
				PRIMARY KEY (entity_id, user_id)
			)`,

			// Globally-scoped runtime feature flags.
			`CREATE TABLE IF NOT EXISTS feature_flags (
				name TEXT PRIMARY KEY,
				enabled INTEGER NOT NULL DEFAULT 0,
				updated_at TEXT NOT NULL
			)`,

			// Bookkeeping for monthly proration batch runs.
			`CREATE TABLE IF NOT EXISTS proration_runs (
				id TEXT PRIMARY KEY,
				month_key TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'running',
				entity_count INTEGER NOT NULL DEFAULT 0,
				entry_count INTEGER NOT NULL DEFAULT 0,
				error TEXT,
				started_at TEXT NOT NULL,
				completed_at TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_proration_runs_month ON proration_runs(month_key)`,
		},
	})
}
