package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
		CREATE TABLE IF NOT EXISTS credentials (
			integration TEXT PRIMARY KEY,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL DEFAULT '',
			expires_at BIGINT NOT NULL DEFAULT 0,
			scope TEXT NOT NULL DEFAULT '',
			last_refreshed_at BIGINT NOT NULL DEFAULT 0,
			identity TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS auth_states (
			integration TEXT PRIMARY KEY,
			token TEXT NOT NULL,
			expires_at TIMESTAMP WITH TIME ZONE NOT NULL
		);

		CREATE TABLE IF NOT EXISTS ledger (
			flow_id TEXT NOT NULL,
			source TEXT NOT NULL,
			external_id TEXT NOT NULL,
			job_id TEXT NOT NULL DEFAULT '',
			processed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			PRIMARY KEY (flow_id, source, external_id)
		);

		CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			flow_id TEXT NOT NULL,
			owner TEXT NOT NULL DEFAULT '',
			base_config JSONB,
			payload JSONB NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			completed_at TIMESTAMP WITH TIME ZONE
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_flow_id ON jobs (flow_id);
		CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs (status);

		CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			owner TEXT NOT NULL DEFAULT '',
			cron_expression TEXT NOT NULL,
			status TEXT NOT NULL,
			last_run_at TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		);

		CREATE TABLE IF NOT EXISTS flows (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			name TEXT NOT NULL,
			owner TEXT NOT NULL DEFAULT '',
			fetcher_id TEXT NOT NULL,
			configuration JSONB,
			steps JSONB,
			schedule_mode TEXT NOT NULL,
			cron_expression TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			schedulable BOOLEAN NOT NULL DEFAULT TRUE,
			last_run_at TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_flows_project_id ON flows (project_id);

		CREATE TABLE IF NOT EXISTS schedules (
			id TEXT NOT NULL,
			unit_id TEXT PRIMARY KEY,
			unit_kind TEXT NOT NULL,
			cron_expression TEXT NOT NULL,
			next_due_at TIMESTAMP WITH TIME ZONE NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_schedules_next_due_at ON schedules (next_due_at) WHERE active;
		`,
	}
}
