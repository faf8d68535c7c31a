package store

// initialize creates the required tables and indexes.
func (s *Store) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			description TEXT,
			workdir TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			deleted INTEGER NOT NULL DEFAULT 0
		);`,

		`CREATE TABLE IF NOT EXISTS work_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id INTEGER NOT NULL REFERENCES projects(id),
			parent_id INTEGER,
			epic_id INTEGER,
			story_id INTEGER,
			kind TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			priority INTEGER NOT NULL DEFAULT 0,
			dependency_ids TEXT,
			retry_count INTEGER NOT NULL DEFAULT 0,
			max_retries INTEGER NOT NULL DEFAULT 3,
			executor TEXT,
			prompt TEXT,
			result TEXT,
			metadata TEXT,
			requires_adr INTEGER NOT NULL DEFAULT 0,
			has_arch_changes INTEGER NOT NULL DEFAULT 0,
			changes_summary TEXT,
			documentation_status TEXT NOT NULL DEFAULT 'pending',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			started_at TEXT,
			completed_at TEXT,
			deleted INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_work_items_project_status
			ON work_items(project_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_work_items_parent
			ON work_items(parent_id);`,

		`CREATE TABLE IF NOT EXISTS milestones (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id INTEGER NOT NULL REFERENCES projects(id),
			name TEXT NOT NULL,
			description TEXT,
			target_date TEXT,
			required_epic_ids TEXT,
			achieved INTEGER NOT NULL DEFAULT 0,
			achieved_at TEXT,
			version TEXT,
			metadata TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_milestones_project_achieved
			ON milestones(project_id, achieved);`,

		`CREATE TABLE IF NOT EXISTS interactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			work_item_id INTEGER NOT NULL REFERENCES work_items(id),
			iteration INTEGER NOT NULL,
			prompt TEXT,
			response TEXT,
			validator_ok INTEGER NOT NULL DEFAULT 0,
			validator_issues TEXT,
			quality_score REAL NOT NULL DEFAULT 0,
			confidence_score REAL NOT NULL DEFAULT 0,
			confidence_detail TEXT,
			decision TEXT,
			error_kind TEXT,
			duration_ns INTEGER NOT NULL DEFAULT 0,
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			response_tokens INTEGER NOT NULL DEFAULT 0,
			estimated_tokens INTEGER NOT NULL DEFAULT 0,
			started_at TEXT NOT NULL,
			completed_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_item_iteration
			ON interactions(work_item_id, iteration);`,

		`CREATE TABLE IF NOT EXISTS checkpoints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id INTEGER NOT NULL REFERENCES projects(id),
			reason TEXT,
			payload BLOB,
			created_at TEXT NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS breakpoints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			work_item_id INTEGER NOT NULL REFERENCES work_items(id),
			severity TEXT NOT NULL,
			reason TEXT,
			context TEXT,
			opened_at TEXT NOT NULL,
			resolved_at TEXT,
			resolution TEXT,
			feedback TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_breakpoints_item
			ON breakpoints(work_item_id);`,

		`CREATE TABLE IF NOT EXISTS file_changes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			work_item_id INTEGER NOT NULL REFERENCES work_items(id),
			interaction_id INTEGER,
			path TEXT NOT NULL,
			kind TEXT NOT NULL,
			content_hash TEXT,
			size INTEGER NOT NULL DEFAULT 0,
			observed_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_file_changes_item
			ON file_changes(work_item_id);`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return storageErr("store.initialize", err)
		}
	}
	return nil
}
